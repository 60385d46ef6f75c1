package persistence

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/klauspost/compress/zstd"
	model "github.com/okian/vitals/internal/domain/model"
)

const codecVersion = 1

// Codec packs one metric series into a compressed block. Start times are
// delta-of-delta encoded, spans are stored as plain varints and values are
// XORed with their predecessor before the whole block goes through zstd.
// Units, sources and quality flags share a per-block string table.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec creates a codec with a zstd level between 1 and 22.
func NewCodec(level int) (*Codec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	return &Codec{encoder: encoder, decoder: decoder}, nil
}

// Encode packs samples, which must all share one metric type.
func (c *Codec) Encode(samples []model.Sample) []byte {
	buf := make([]byte, 0, 16+len(samples)*20)
	buf = append(buf, codecVersion)
	buf = binary.AppendUvarint(buf, uint64(len(samples)))

	var prev, prevDelta int64
	for i, s := range samples {
		ts := s.Start.UnixNano()
		if i == 0 {
			buf = binary.AppendVarint(buf, ts)
		} else {
			delta := ts - prev
			buf = binary.AppendVarint(buf, delta-prevDelta)
			prevDelta = delta
		}
		prev = ts
	}
	for _, s := range samples {
		buf = binary.AppendVarint(buf, s.End.UnixNano()-s.Start.UnixNano())
	}
	var prevBits uint64
	for _, s := range samples {
		bits := math.Float64bits(s.Value)
		buf = binary.LittleEndian.AppendUint64(buf, bits^prevBits)
		prevBits = bits
	}

	table := newStringTable()
	refs := make([]uint64, 0, len(samples)*3)
	for _, s := range samples {
		refs = append(refs, table.ref(string(s.Unit)), table.ref(s.SourceID), table.ref(string(s.Quality)))
	}
	buf = binary.AppendUvarint(buf, uint64(len(table.values)))
	for _, v := range table.values {
		buf = binary.AppendUvarint(buf, uint64(len(v)))
		buf = append(buf, v...)
	}
	for _, r := range refs {
		buf = binary.AppendUvarint(buf, r)
	}

	return c.encoder.EncodeAll(buf, make([]byte, 0, len(buf)/2))
}

// Decode unpacks a block produced by Encode, stamping every sample with t.
func (c *Codec) Decode(t model.MetricType, data []byte) ([]model.Sample, error) {
	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	r := &blockReader{buf: raw}
	if v := r.u8(); v != codecVersion {
		return nil, fmt.Errorf("%w: version %d", ErrCorrupt, v)
	}
	n := r.uvarint()
	if r.err != nil || n > uint64(len(raw)) {
		return nil, fmt.Errorf("%w: bad sample count", ErrCorrupt)
	}

	samples := make([]model.Sample, n)
	var prev, prevDelta int64
	for i := range samples {
		v := r.varint()
		if i == 0 {
			prev = v
		} else {
			prevDelta += v
			prev += prevDelta
		}
		samples[i].Type = t
		samples[i].Start = time.Unix(0, prev).UTC()
	}
	for i := range samples {
		samples[i].End = samples[i].Start.Add(time.Duration(r.varint()))
	}
	var prevBits uint64
	for i := range samples {
		prevBits ^= r.u64()
		samples[i].Value = math.Float64frombits(prevBits)
	}

	size := r.uvarint()
	if r.err != nil || size > uint64(len(raw)) {
		return nil, fmt.Errorf("%w: bad string table", ErrCorrupt)
	}
	table := make([]string, size)
	for i := range table {
		table[i] = r.str()
	}
	lookup := func() string {
		idx := r.uvarint()
		if idx >= uint64(len(table)) {
			r.fail()
			return ""
		}
		return table[idx]
	}
	for i := range samples {
		samples[i].Unit = model.Unit(lookup())
		samples[i].SourceID = lookup()
		samples[i].Quality = model.Quality(lookup())
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: truncated block", ErrCorrupt)
	}
	return samples, nil
}

// Close releases the zstd resources.
func (c *Codec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

type stringTable struct {
	index  map[string]uint64
	values []string
}

func newStringTable() *stringTable {
	return &stringTable{index: make(map[string]uint64)}
}

func (t *stringTable) ref(s string) uint64 {
	if i, ok := t.index[s]; ok {
		return i
	}
	i := uint64(len(t.values))
	t.index[s] = i
	t.values = append(t.values, s)
	return i
}

// blockReader reads varints until the first error, after which every read
// returns zero.
type blockReader struct {
	buf []byte
	err error
}

func (r *blockReader) fail() {
	if r.err == nil {
		r.err = ErrCorrupt
	}
	r.buf = nil
}

func (r *blockReader) u8() byte {
	if len(r.buf) < 1 {
		r.fail()
		return 0
	}
	b := r.buf[0]
	r.buf = r.buf[1:]
	return b
}

func (r *blockReader) uvarint() uint64 {
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.fail()
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *blockReader) varint() int64 {
	v, n := binary.Varint(r.buf)
	if n <= 0 {
		r.fail()
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *blockReader) u64() uint64 {
	if len(r.buf) < 8 {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf)
	r.buf = r.buf[8:]
	return v
}

func (r *blockReader) str() string {
	n := r.uvarint()
	if n > uint64(len(r.buf)) {
		r.fail()
		return ""
	}
	s := string(r.buf[:n])
	r.buf = r.buf[n:]
	return s
}
