package voxel

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const chunkBlobVersion = 1

type chunkBlob struct {
	V int      `json:"v"`
	O [][4]int `json:"o"`
}

var (
	blobEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	blobDec, _ = zstd.NewReader(nil)
)

// EncodeChunk serialises a chunk's override set as zstd-compressed JSON.
func EncodeChunk(ovs []Override) ([]byte, error) {
	blob := chunkBlob{V: chunkBlobVersion, O: make([][4]int, 0, len(ovs))}
	for _, o := range ovs {
		blob.O = append(blob.O, [4]int{o.LX, o.Y, o.LZ, int(o.Block)})
	}
	raw, err := json.Marshal(blob)
	if err != nil {
		return nil, err
	}
	return blobEnc.EncodeAll(raw, nil), nil
}

func DecodeChunk(b []byte) ([]Override, error) {
	raw, err := blobDec.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("voxel chunk: %w", err)
	}
	var blob chunkBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, fmt.Errorf("voxel chunk: %w", err)
	}
	if blob.V != chunkBlobVersion {
		return nil, fmt.Errorf("voxel chunk: unsupported version %d", blob.V)
	}
	out := make([]Override, 0, len(blob.O))
	for _, r := range blob.O {
		if r[0] < 0 || r[0] >= ChunkSize || r[2] < 0 || r[2] >= ChunkSize {
			return nil, fmt.Errorf("voxel chunk: local coord out of range: %v", r)
		}
		if r[3] < 0 || r[3] > 0xFFFF {
			return nil, fmt.Errorf("voxel chunk: bad block id %d", r[3])
		}
		out = append(out, Override{LX: r[0], Y: r[1], LZ: r[2], Block: uint16(r[3])})
	}
	return out, nil
}
