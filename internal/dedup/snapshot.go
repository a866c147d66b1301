package dedup

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/somali-nlp/somali-dialect-classifier/pkg/alg/lsh"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/alg/minhash"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/persist"
)

const snapshotDirPerm = 0o750

// snapshotCodec compresses snapshots; signature tables are repetitive and
// shrink severalfold under LZ4.
var snapshotCodec = persist.NewLZ4GobCodec()

// snapshotState is the serialized engine state.
type snapshotState struct {
	Hashes []exactKey
	Docs   []snapshotDoc
}

// snapshotDoc carries one indexed document.
type snapshotDoc struct {
	ID        string
	Signature []byte
	Shingles  []string
}

// Save writes the engine state atomically into dir under the given basename,
// creating the directory if needed.
func (e *Engine) Save(dir, basename string) error {
	if err := os.MkdirAll(dir, snapshotDirPerm); err != nil {
		return fmt.Errorf("dedup: create snapshot dir: %w", err)
	}

	state := snapshotState{
		Hashes: make([]exactKey, 0, len(e.hashes)),
		Docs:   make([]snapshotDoc, 0, len(e.shingles)),
	}
	for key := range e.hashes {
		state.Hashes = append(state.Hashes, key)
	}
	sort.Slice(state.Hashes, func(i, j int) bool {
		return bytes.Compare(state.Hashes[i][:], state.Hashes[j][:]) < 0
	})

	e.index.Each(func(id string, sig *minhash.Signature) {
		state.Docs = append(state.Docs, snapshotDoc{
			ID:        id,
			Signature: sig.Bytes(),
			Shingles:  e.shingles[id],
		})
	})

	sort.Slice(state.Docs, func(i, j int) bool { return state.Docs[i].ID < state.Docs[j].ID })

	if err := persist.SaveState(dir, basename, snapshotCodec, &state); err != nil {
		return fmt.Errorf("dedup: save snapshot: %w", err)
	}

	return nil
}

// Load restores a snapshot written by Save. A missing snapshot is a normal
// cold start. An unreadable snapshot, or one whose signatures do not match
// the engine's configuration, is tolerated with a warning and the engine
// starts empty; deduplication then degrades to within-run only.
func (e *Engine) Load(dir, basename string) error {
	var state snapshotState

	err := persist.LoadState(dir, basename, snapshotCodec, &state)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		e.logger.Warn("dedup snapshot unreadable, starting empty",
			"snapshot", basename, "error", err)

		return nil
	}

	hashes := make(map[exactKey]struct{}, len(state.Hashes))
	for _, key := range state.Hashes {
		hashes[key] = struct{}{}
	}

	index, err := lsh.New(e.cfg.NumBands, e.cfg.NumRows)
	if err != nil {
		return fmt.Errorf("dedup: rebuild index: %w", err)
	}

	shingles := make(map[string][]string, len(state.Docs))

	for _, doc := range state.Docs {
		sig, docErr := minhash.FromBytes(doc.Signature)
		if docErr == nil {
			docErr = index.Insert(doc.ID, sig)
		}

		if docErr != nil {
			e.logger.Warn("dedup snapshot document malformed, starting empty",
				"snapshot", basename, "id", doc.ID, "error", docErr)

			return nil
		}

		shingles[doc.ID] = doc.Shingles
	}

	// Swap in fully rebuilt state so the engine never runs half-loaded.
	e.hashes = hashes
	e.index = index
	e.shingles = shingles

	e.logger.Debug("dedup snapshot loaded",
		"snapshot", basename, "exact", len(hashes), "indexed", len(shingles))

	return nil
}
