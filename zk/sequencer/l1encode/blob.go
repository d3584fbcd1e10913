package l1encode

import (
	"crypto/sha256"
	"fmt"

	ckzg "github.com/crate-crypto/go-kzg-4844"
)

// BlobVersionHashVersion is forced into the first byte of every versioned
// hash (invariant 7): versioned_hash = 0x01 ++ sha256(kzg_commitment)[1:].
const BlobVersionHashVersion = 0x01

// BlobSidecarEntry is one blob's worth of commitment material, attached to
// a Commit operation submitted in blob-DA mode.
type BlobSidecarEntry struct {
	Blob           ckzg.Blob
	Commitment     ckzg.KZGCommitment
	Proof          ckzg.KZGProof
	VersionedHash  [32]byte
}

// BlobEncoder holds a KZG context that NewBlobEncoder builds eagerly from the
// trusted setup embedded in go-kzg-4844; building it is expensive enough
// (loads the SRS) that every caller should share one long-lived instance
// rather than rebuilding it per batch.
type BlobEncoder struct {
	ctx *ckzg.Context
}

func NewBlobEncoder() (*BlobEncoder, error) {
	ctx, err := ckzg.NewContext4096Secure()
	if err != nil {
		return nil, fmt.Errorf("l1encode: failed loading kzg trusted setup: %w", err)
	}
	return &BlobEncoder{ctx: ctx}, nil
}

// BuildSidecar splits pubdata into BytesPerBlob-sized chunks (zero-padding
// the final chunk) and computes a commitment, proof and versioned hash for
// each, per spec.md 4.4's blob sidecar step.
func (e *BlobEncoder) BuildSidecar(pubdata []byte) ([]BlobSidecarEntry, error) {
	chunks := chunkPubdata(pubdata)
	entries := make([]BlobSidecarEntry, len(chunks))
	for i, chunk := range chunks {
		var blob ckzg.Blob
		copy(blob[:], chunk)

		commitment, err := e.ctx.BlobToKZGCommitment(&blob, 0)
		if err != nil {
			return nil, fmt.Errorf("l1encode: failed computing commitment for blob %d: %w", i, err)
		}
		proof, err := e.ctx.ComputeBlobKZGProof(&blob, commitment, 0)
		if err != nil {
			return nil, fmt.Errorf("l1encode: failed computing proof for blob %d: %w", i, err)
		}

		entries[i] = BlobSidecarEntry{
			Blob:          blob,
			Commitment:    commitment,
			Proof:         proof,
			VersionedHash: versionedHash(commitment),
		}
	}
	return entries, nil
}

// versionedHash implements invariant 7 exactly: sha256(commitment) with the
// first byte forced to BlobVersionHashVersion, matching EIP-4844.
func versionedHash(commitment ckzg.KZGCommitment) [32]byte {
	digest := sha256.Sum256(commitment[:])
	digest[0] = BlobVersionHashVersion
	return digest
}

func chunkPubdata(pubdata []byte) [][]byte {
	if len(pubdata) == 0 {
		return nil
	}
	var chunks [][]byte
	for offset := 0; offset < len(pubdata); offset += BytesPerBlob {
		end := offset + BytesPerBlob
		if end > len(pubdata) {
			end = len(pubdata)
		}
		chunk := make([]byte, BytesPerBlob)
		copy(chunk, pubdata[offset:end])
		chunks = append(chunks, chunk)
	}
	return chunks
}
