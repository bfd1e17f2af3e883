package merkle

import (
	"crypto/sha256"
	"encoding/hex"
)

// Node is a single Merkle tree node. Leaves carry Data and no children;
// internal nodes carry Left/Right and no Data. Hash is always populated.
type Node struct {
	Hash  string
	Left  *Node
	Right *Node
	Data  string
}

// NewLeaf builds a leaf node, hashing data with SHA-256.
func NewLeaf(data string) *Node {
	return &Node{Hash: hashHex([]byte(data)), Data: data}
}

// NewParent builds an internal node from two children. The parent hash
// is SHA256(left.Hash || right.Hash), concatenating the hex strings
// (not the raw bytes) per spec.md §4.3.
func NewParent(left, right *Node) *Node {
	return &Node{Hash: hashHex([]byte(left.Hash + right.Hash)), Left: left, Right: right}
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
