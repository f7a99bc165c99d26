package transformer

import (
	"bytes"
	"encoding/binary"
	"io"
	"path/filepath"
	"testing"

	"github.com/conneroisu/transformer/pkg/data"
	"github.com/conneroisu/transformer/pkg/torch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestCheckpointRoundTrip(t *testing.T) {
	vocab, err := data.NewVocabulary([]string{"the", "cat", "sat", "l'été"})
	require.NoError(t, err)
	w := randomWeights(t, 12, vocab.Len(), 3, 1)

	var buf bytes.Buffer
	require.NoError(t, SaveCheckpoint(&buf, vocab, w))
	gotVocab, got, err := LoadCheckpoint(&buf)
	require.NoError(t, err)

	assert.Equal(t, vocab.Words(), gotVocab.Words())
	assert.True(t, mat.Equal(w.WK, got.WK))
	assert.True(t, mat.Equal(w.WQ, got.WQ))
	assert.True(t, mat.Equal(w.WV, got.WV))
	assert.True(t, mat.Equal(w.WO, got.WO))
}

func TestSaveLoadModel(t *testing.T) {
	vocab := newTestVocabulary(t)
	w := randomWeights(t, 13, vocab.Len(), 2, 1)
	path := filepath.Join(t.TempDir(), "model.ckpt")
	require.NoError(t, SaveModel(path, vocab, w))

	gotVocab, got, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, 4, gotVocab.Len())
	assert.True(t, mat.Equal(w.WO, got.WO))

	_, _, err = LoadModel("")
	require.Error(t, err)
}

func TestLoadCheckpointRejectsBadHeader(t *testing.T) {
	header := make([]int32, headerLen)
	header[0], header[1] = 20240326, 1
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, header))
	_, _, err := LoadCheckpoint(&buf)
	require.ErrorIs(t, err, ErrInvalidCheckpoint)

	_, _, err = LoadCheckpoint(bytes.NewReader([]byte{1, 2, 3}))
	require.Error(t, err)
}

func TestLoadCheckpointTruncatedVocabulary(t *testing.T) {
	// the header claims far more words than the file holds
	header := make([]int32, headerLen)
	header[0], header[1], header[2], header[3] = checkpointMagic, checkpointVersion, 1<<30, 2
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, header))
	buf.Write([]byte{1, 'a', 1, 'b'})
	_, _, err := LoadCheckpoint(&buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestSaveCheckpointVocabularyMismatch(t *testing.T) {
	vocab := newTestVocabulary(t)
	var buf bytes.Buffer
	err := SaveCheckpoint(&buf, vocab, zeroWeights(t, 5, 2))
	require.ErrorIs(t, err, torch.ErrShapeMismatch)
	err = SaveCheckpoint(&buf, nil, zeroWeights(t, 4, 2))
	require.ErrorIs(t, err, torch.ErrShapeMismatch)
}
