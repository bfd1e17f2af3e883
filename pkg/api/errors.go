package api

import "errors"

var errInvalidInt = errors.New("api: invalid integer query parameter")
