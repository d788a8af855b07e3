package testbroker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/twmb/franz-go/pkg/kmsg"
)

// maxRequestSize bounds a single request frame.
const maxRequestSize = 16 << 20

type requestHeader struct {
	apiKey        int16
	apiVersion    int16
	correlationID int32
	clientID      string
}

func (b *Broker) handleConn(conn net.Conn) {
	defer b.connWg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer conn.Close()
	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
	}()

	logger := b.logger.With(map[string]any{
		"connId":     b.connID.Add(1),
		"remoteAddr": conn.RemoteAddr().String(),
	})
	logger.Debug("connection accepted")

	for {
		header, payload, err := readRequest(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !b.closed.Load() {
				logger.Debugf("read request failed", map[string]any{"error": err.Error()})
			}
			return
		}

		response, err := b.dispatch(ctx, header, payload)
		if err != nil {
			logger.Warnf("request failed", map[string]any{
				"apiKey":     header.apiKey,
				"apiVersion": header.apiVersion,
				"clientId":   header.clientID,
				"error":      err.Error(),
			})
			return
		}
		if err := writeResponse(conn, response); err != nil {
			logger.Debugf("write response failed", map[string]any{"error": err.Error()})
			return
		}
	}
}

// dispatch decodes one request and returns the encoded response, including
// the response header.
func (b *Broker) dispatch(ctx context.Context, h *requestHeader, payload []byte) ([]byte, error) {
	if h.apiKey == apiKeyApiVersions && h.apiVersion > maxVersion(apiKeyApiVersions) {
		// Clients retry with v0 when told the version is unsupported.
		resp := b.apiVersions(0, unsupportedVersion)
		return encodeResponse(h, resp), nil
	}

	minV, maxV, ok := versionRange(h.apiKey)
	if !ok {
		return nil, fmt.Errorf("unsupported api key %d", h.apiKey)
	}
	if h.apiVersion < minV || h.apiVersion > maxV {
		return nil, fmt.Errorf("api key %d version %d outside [%d, %d]", h.apiKey, h.apiVersion, minV, maxV)
	}

	req := kmsg.RequestForKey(h.apiKey)
	if req == nil {
		return nil, fmt.Errorf("no request type for api key %d", h.apiKey)
	}
	req.SetVersion(h.apiVersion)
	if err := req.ReadFrom(payload); err != nil {
		return nil, fmt.Errorf("decode %s v%d: %w", kmsg.NameForKey(h.apiKey), h.apiVersion, err)
	}

	var resp kmsg.Response
	switch r := req.(type) {
	case *kmsg.ApiVersionsRequest:
		resp = b.apiVersions(r.Version, 0)
	case *kmsg.MetadataRequest:
		resp = b.metadata(r)
	case *kmsg.ListOffsetsRequest:
		resp = b.listOffsets(r)
	case *kmsg.FetchRequest:
		resp = b.fetch(ctx, r)
	default:
		return nil, fmt.Errorf("no handler for %s", kmsg.NameForKey(h.apiKey))
	}
	return encodeResponse(h, resp), nil
}

// encodeResponse prepends the response header. ApiVersions always uses the
// v0 response header, even for flexible versions.
func encodeResponse(h *requestHeader, resp kmsg.Response) []byte {
	buf := make([]byte, 0, 64)
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.correlationID))
	if resp.IsFlexible() && h.apiKey != apiKeyApiVersions {
		buf = append(buf, 0)
	}
	return resp.AppendTo(buf)
}

func readRequest(r io.Reader) (*requestHeader, []byte, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, nil, err
	}
	length := int32(binary.BigEndian.Uint32(lengthBuf[:]))
	if length < 0 || length > maxRequestSize {
		return nil, nil, fmt.Errorf("invalid request size: %d", length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, fmt.Errorf("read request body: %w", err)
	}

	header, n, err := parseRequestHeader(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("parse request header: %w", err)
	}
	return header, buf[n:], nil
}

// parseRequestHeader handles request header v1 and v2. The client ID is an
// int16-length string in both; v2 adds a tagged field section.
func parseRequestHeader(buf []byte) (*requestHeader, int, error) {
	if len(buf) < 10 {
		return nil, 0, errors.New("request too short for header")
	}

	h := &requestHeader{
		apiKey:        int16(binary.BigEndian.Uint16(buf[0:2])),
		apiVersion:    int16(binary.BigEndian.Uint16(buf[2:4])),
		correlationID: int32(binary.BigEndian.Uint32(buf[4:8])),
	}
	offset := 8

	clientIDLen := int16(binary.BigEndian.Uint16(buf[offset : offset+2]))
	offset += 2
	if clientIDLen < -1 {
		return nil, 0, fmt.Errorf("invalid clientId length: %d", clientIDLen)
	}
	if clientIDLen > 0 {
		if len(buf) < offset+int(clientIDLen) {
			return nil, 0, errors.New("request too short for clientId")
		}
		h.clientID = string(buf[offset : offset+int(clientIDLen)])
		offset += int(clientIDLen)
	}

	if !flexibleRequest(h.apiKey, h.apiVersion) {
		return h, offset, nil
	}

	numTags, n := binary.Uvarint(buf[offset:])
	if n <= 0 {
		return nil, 0, errors.New("request too short for header tags")
	}
	offset += n
	for i := uint64(0); i < numTags; i++ {
		_, n := binary.Uvarint(buf[offset:])
		if n <= 0 {
			return nil, 0, errors.New("request too short for tag key")
		}
		offset += n
		tagLen, n := binary.Uvarint(buf[offset:])
		if n <= 0 {
			return nil, 0, errors.New("request too short for tag length")
		}
		offset += n
		if len(buf) < offset+int(tagLen) {
			return nil, 0, errors.New("request too short for tag data")
		}
		offset += int(tagLen)
	}
	return h, offset, nil
}

func flexibleRequest(apiKey, version int16) bool {
	req := kmsg.RequestForKey(apiKey)
	if req == nil {
		return false
	}
	req.SetVersion(version)
	return req.IsFlexible()
}

func writeResponse(w io.Writer, response []byte) error {
	frame := make([]byte, 0, 4+len(response))
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(response)))
	frame = append(frame, response...)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}
