package transformer

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/conneroisu/transformer/pkg/data"
	"github.com/conneroisu/transformer/pkg/torch"
	"gonum.org/v1/gonum/mat"
)

const (
	checkpointMagic   int32 = 20241017
	checkpointVersion int32 = 1
	headerLen               = 256
	maxWordLen              = 255
)

// ErrInvalidCheckpoint is returned for input that is not a checkpoint this
// package wrote.
var ErrInvalidCheckpoint = errors.New("invalid checkpoint")

// SaveCheckpoint writes the vocabulary and weights to w.
//
// Layout, little endian:
//   - header: 256 int32, {magic, version, V, d, 0...}
//   - V words, each a uint8 length followed by its bytes
//   - WK, WQ, WV, WO in gonum's binary matrix format
func SaveCheckpoint(w io.Writer, vocab *data.Vocabulary, weights Weights) error {
	if err := weights.Validate(); err != nil {
		return err
	}
	V, d := weights.Dims()
	if vocab == nil {
		return fmt.Errorf("nil vocabulary: %w", torch.ErrShapeMismatch)
	}
	if vocab.Len() != V {
		return fmt.Errorf("vocabulary of %d words for weights over %d: %w", vocab.Len(), V, torch.ErrShapeMismatch)
	}
	bw := bufio.NewWriter(w)
	header := make([]int32, headerLen)
	header[0], header[1], header[2], header[3] = checkpointMagic, checkpointVersion, int32(V), int32(d)
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return err
	}
	for _, word := range vocab.Words() {
		if len(word) > maxWordLen {
			return fmt.Errorf("word %q longer than %d bytes", word, maxWordLen)
		}
		if err := bw.WriteByte(byte(len(word))); err != nil {
			return err
		}
		if _, err := bw.WriteString(word); err != nil {
			return err
		}
	}
	for _, m := range []*mat.Dense{weights.WK, weights.WQ, weights.WV, weights.WO} {
		if _, err := m.MarshalBinaryTo(bw); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// LoadCheckpoint reads a vocabulary and weights written by SaveCheckpoint.
func LoadCheckpoint(r io.Reader) (*data.Vocabulary, Weights, error) {
	br := bufio.NewReader(r)
	header := make([]int32, headerLen)
	if err := binary.Read(br, binary.LittleEndian, header); err != nil {
		return nil, Weights{}, fmt.Errorf("reading header: %w", err)
	}
	if header[0] != checkpointMagic || header[1] != checkpointVersion {
		return nil, Weights{}, fmt.Errorf("magic %d version %d: %w", header[0], header[1], ErrInvalidCheckpoint)
	}
	V, d := int(header[2]), int(header[3])
	if V <= 0 || d <= 0 {
		return nil, Weights{}, fmt.Errorf("V=%d d=%d: %w", V, d, ErrInvalidCheckpoint)
	}
	// V is untrusted until that many words have actually been read.
	var words []string
	for i := 0; i < V; i++ {
		length, err := br.ReadByte()
		if err != nil {
			return nil, Weights{}, fmt.Errorf("reading word %d: %w", i, err)
		}
		if length == 0 {
			return nil, Weights{}, fmt.Errorf("empty word %d: %w", i, ErrInvalidCheckpoint)
		}
		word := make([]byte, length)
		if _, err := io.ReadFull(br, word); err != nil {
			return nil, Weights{}, fmt.Errorf("reading word %d: %w", i, err)
		}
		words = append(words, string(word))
	}
	vocab, err := data.NewVocabulary(words)
	if err != nil {
		return nil, Weights{}, err
	}
	var mats [4]*mat.Dense
	for i := range mats {
		var m mat.Dense
		if _, err := m.UnmarshalBinaryFrom(br); err != nil {
			return nil, Weights{}, fmt.Errorf("reading matrix %d: %w", i, err)
		}
		mats[i] = &m
	}
	weights := Weights{WK: mats[0], WQ: mats[1], WV: mats[2], WO: mats[3]}
	if err := weights.Validate(); err != nil {
		return nil, Weights{}, err
	}
	if v, dim := weights.Dims(); v != V || dim != d {
		return nil, Weights{}, fmt.Errorf("header says %dx%d, weights are %dx%d: %w", V, d, v, dim, torch.ErrShapeMismatch)
	}
	return vocab, weights, nil
}

// SaveModel writes a checkpoint to filename.
func SaveModel(filename string, vocab *data.Vocabulary, weights Weights) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := SaveCheckpoint(f, vocab, weights); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadModel reads a checkpoint from filename.
func LoadModel(filename string) (*data.Vocabulary, Weights, error) {
	if filename == "" {
		return nil, Weights{}, fmt.Errorf("checkpoint file path is required")
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, Weights{}, fmt.Errorf("opening checkpoint: %w", err)
	}
	defer f.Close()
	return LoadCheckpoint(f)
}
