// Package stream reads device video frames from the provider.
package stream

import (
	"context"
	"encoding/binary"
	"iter"
	"time"

	"github.com/pkg/errors"
)

// TagImage marks a binary stream message carrying one encoded image.
const TagImage uint32 = 2

const tagSize = 4

// ErrShortMessage is returned for binary messages without a full type tag.
var ErrShortMessage = errors.New("stream message shorter than type tag")

// Frame is one encoded image received from a device.
type Frame struct {
	Seq        uint64
	Data       []byte
	ReceivedAt time.Time
}

// Source yields the frames of one device.
//
// Each iteration of the returned sequence opens its own connection and
// closes it when the consumer stops, ctx is cancelled or an error is
// yielded. Calling Frames again reconnects.
type Source interface {
	Frames(ctx context.Context) iter.Seq2[Frame, error]
}

// DecodeMessage splits a binary stream message into its big-endian type tag and payload.
func DecodeMessage(b []byte) (uint32, []byte, error) {
	if len(b) < tagSize {
		return 0, nil, errors.Wrapf(ErrShortMessage, "got %d bytes", len(b))
	}
	return binary.BigEndian.Uint32(b[:tagSize]), b[tagSize:], nil
}

// EncodeMessage prefixes payload with tag. It is the inverse of DecodeMessage.
func EncodeMessage(tag uint32, payload []byte) []byte {
	out := make([]byte, tagSize+len(payload))
	binary.BigEndian.PutUint32(out, tag)
	copy(out[tagSize:], payload)
	return out
}
