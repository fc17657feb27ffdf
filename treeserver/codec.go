// ABOUTME: Storage encoding for node documents: zstd-compressed JSON with a blake3 digest.
// ABOUTME: The digest identifies a committed version and doubles as the HTTP ETag.

package treeserver

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/2389-research/flowgraph/tree"
	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// encodeNode serializes and compresses n, returning the blob and the digest of the
// uncompressed JSON.
func encodeNode(n *tree.Node) ([]byte, string, error) {
	raw, err := json.Marshal(n)
	if err != nil {
		return nil, "", fmt.Errorf("encode node %s: %w", n.ID, err)
	}
	return encoder.EncodeAll(raw, nil), digest(raw), nil
}

func decodeNode(blob []byte) (*tree.Node, error) {
	raw, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress node: %w", err)
	}
	var n tree.Node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	return &n, nil
}

func digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
