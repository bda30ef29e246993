package cluster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// EncodingZstd is the Content-Encoding token for zstd bodies.
const EncodingZstd = "zstd"

// CompressThreshold is the body size above which requests and responses
// are sent zstd-compressed.
const CompressThreshold = 64 << 10

// maxBodySize caps decoded request bodies.
const maxBodySize = 1 << 30

var (
	encoderPool sync.Pool
	decoderPool sync.Pool
)

func getEncoder() *zstd.Encoder {
	if v := encoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	return enc
}

func getDecoder() *zstd.Decoder {
	if v := decoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxBodySize))
	return dec
}

func compress(src []byte) []byte {
	enc := getEncoder()
	defer encoderPool.Put(enc)
	return enc.EncodeAll(src, make([]byte, 0, len(src)/4))
}

func decompress(src []byte) ([]byte, error) {
	dec := getDecoder()
	defer decoderPool.Put(dec)
	return dec.DecodeAll(src, nil)
}

func decodeBody(r io.Reader, encoding string, out any) error {
	if !strings.EqualFold(encoding, EncodingZstd) {
		return json.NewDecoder(r).Decode(out)
	}
	raw, err := io.ReadAll(io.LimitReader(r, maxBodySize))
	if err != nil {
		return err
	}
	plain, err := decompress(raw)
	if err != nil {
		return fmt.Errorf("zstd: %w", err)
	}
	return json.Unmarshal(plain, out)
}

// DecodeJSON decodes a request body written by PostJSON, transparently
// handling zstd content encoding.
func DecodeJSON(r *http.Request, out any) error {
	return decodeBody(r.Body, r.Header.Get("Content-Encoding"), out)
}

// WriteJSON encodes v with the given status. Large bodies are compressed
// when the client advertised zstd support.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if len(body) > CompressThreshold && strings.Contains(r.Header.Get("Accept-Encoding"), EncodingZstd) {
		body = compress(body)
		w.Header().Set("Content-Encoding", EncodingZstd)
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func readMessage(resp *http.Response) string {
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(io.LimitReader(resp.Body, 512))
	return strings.TrimSpace(buf.String())
}
