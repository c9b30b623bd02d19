package fireflower

import "fmt"

// BLZ compression is treated as an opaque external collaborator per
// spec.md §9 ("BLZ handling"): fireflower never re-implements the
// codec, only decides when a backed-up compressed binary or overlay needs
// decompressing before it is patched and whether a patched file should be
// recompressed on save. BLZCodec is the seam a real codec binding plugs into.
type BLZCodec interface {
	Decompress(data []byte) ([]byte, error)
	Compress(data []byte) ([]byte, error)
}

// noBLZCodec is the default codec: it errors rather than silently
// passing compressed bytes through, since fireflower has no way to
// produce or consume BLZ data on its own.
type noBLZCodec struct{}

func (noBLZCodec) Decompress([]byte) ([]byte, error) {
	return nil, fmt.Errorf("fireflower: overlay is BLZ-compressed and no BLZ codec is configured")
}

func (noBLZCodec) Compress([]byte) ([]byte, error) {
	return nil, fmt.Errorf("fireflower: patch.<proc>.compress is set and no BLZ codec is configured")
}

// DefaultBLZCodec is the codec used when none is supplied explicitly.
var DefaultBLZCodec BLZCodec = noBLZCodec{}
