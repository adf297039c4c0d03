package stream

import (
	"context"
	"io"
	"iter"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/frudas24/farmdeck/internal/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const maxFrameBytes = 16 << 20

// MJPEGSource reads frames from a multipart/x-mixed-replace HTTP stream.
type MJPEGSource struct {
	url    string
	header http.Header
	client   *http.Client
	maxFrame int64
	log      *logrus.Entry
}

// NewMJPEGSource returns a source for the MJPEG endpoint at url. A nil client uses one without a timeout.
func NewMJPEGSource(url string, header http.Header, client *http.Client) *MJPEGSource {
	if client == nil {
		client = &http.Client{}
	}
	return &MJPEGSource{
		url:      url,
		header:   header,
		client:   client,
		maxFrame: maxFrameBytes,
		log:      logging.For("stream").WithField("transport", "mjpeg"),
	}
}

// Frames implements Source.
func (s *MJPEGSource) Frames(ctx context.Context) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			yield(Frame{}, errors.Wrapf(err, "build request for %s", s.url))
			return
		}
		for k, vs := range s.header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				yield(Frame{}, errors.Wrapf(err, "get %s", s.url))
			}
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			yield(Frame{}, errors.Errorf("get %s: status %d", s.url, resp.StatusCode))
			return
		}

		boundary, err := partBoundary(resp.Header.Get("Content-Type"))
		if err != nil {
			yield(Frame{}, err)
			return
		}

		s.log.WithField("url", s.url).Debug("stream connected")
		mr := multipart.NewReader(resp.Body, boundary)
		var seq uint64
		for {
			part, err := mr.NextPart()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					return
				}
				yield(Frame{}, errors.Wrap(err, "read stream part"))
				return
			}
			data, err := io.ReadAll(io.LimitReader(part, s.maxFrame+1))
			_ = part.Close()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				yield(Frame{}, errors.Wrap(err, "read frame"))
				return
			}
			if int64(len(data)) > s.maxFrame {
				yield(Frame{}, errors.Errorf("frame %d exceeds %d bytes", seq+1, s.maxFrame))
				return
			}
			if len(data) == 0 {
				continue
			}
			seq++
			if !yield(Frame{Seq: seq, Data: data, ReceivedAt: time.Now()}, nil) {
				return
			}
		}
	}
}

// partBoundary extracts the multipart boundary from a Content-Type header.
func partBoundary(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", errors.Wrapf(err, "parse content type %q", contentType)
	}
	if mediaType != "multipart/x-mixed-replace" {
		return "", errors.Errorf("unexpected content type %q", mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", errors.Errorf("content type %q has no boundary", contentType)
	}
	return boundary, nil
}
