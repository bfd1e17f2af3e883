package pii

import (
	"net"
	"strconv"
	"strings"
)

// Ported from _examples/original_source/src/akios/security/pii/detector.py's
// per-pattern validators (_validate_email, _validate_phone,
// _validate_credit_card, _validate_iban, _validate_ip_address,
// _validate_coordinates). These suppress regex false-positives before a
// match is reported, per spec.md §4.1.

func validateEmail(match string) bool {
	if !strings.Contains(match, "@") {
		return false
	}
	parts := strings.SplitN(match, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return false
	}
	domain := strings.ToLower(parts[1])
	if domain == "localhost" || !strings.Contains(domain, ".") {
		return false
	}
	return true
}

func validatePhone(match string) bool {
	digits := 0
	for _, r := range match {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 7 || digits > 15 {
		return false
	}
	// Require at least 80% digit density across the whole match
	// (separators included), unless it carries 10 or more digits.
	density := float64(digits) / float64(len([]rune(match)))
	return density >= 0.8 || digits >= 10
}

func validateCreditCard(match string) bool {
	digits := make([]int, 0, len(match))
	for _, r := range match {
		if r >= '0' && r <= '9' {
			d, _ := strconv.Atoi(string(r))
			digits = append(digits, d)
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	return luhnValid(digits)
}

func luhnValid(digits []int) bool {
	sum := 0
	parity := len(digits) % 2
	for i, d := range digits {
		if i%2 == parity {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

func validateIBAN(match string) bool {
	m := strings.ToUpper(strings.ReplaceAll(match, " ", ""))
	if len(m) < 15 || len(m) > 34 {
		return false
	}
	if len(m) < 4 {
		return false
	}
	cc := m[0:2]
	for _, r := range cc {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	for _, r := range m[2:4] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validateIPAddress(match string) bool {
	ip := net.ParseIP(match)
	if ip == nil {
		return false
	}
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	if v4[0] == 127 {
		return false // exclude localhost
	}
	return true
}

func validateCoordinates(match string) bool {
	parts := strings.SplitN(match, ",", 2)
	if len(parts) != 2 {
		return false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
