package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/notify"
	"github.com/jonathan/interview-prep/internal/server"
	"go.uber.org/zap"
)

const maxEventBytes = 1 << 20

// sseMessage is one dispatched server-sent event.
type sseMessage struct {
	event string
	data  string
}

// Subscribe opens the job's event stream and returns a channel of change
// events. The channel closes when the job completes, the stream ends or ctx
// is cancelled. It returns once the server has accepted the stream.
func (c *Client) Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan notify.Event, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/jobs/"+jobID.String()+"/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() {
			_ = resp.Body.Close()
		}()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxEventBytes))
		return nil, decodeError(resp.StatusCode, data)
	}

	out := make(chan notify.Event, 16)
	go func() {
		defer close(out)
		defer func() {
			_ = resp.Body.Close()
		}()
		logger := c.log.With(zap.String("job_id", jobID.String()))

		err := readSSE(resp.Body, func(msg sseMessage) bool {
			switch msg.event {
			case server.EventSnapshot, server.EventProgress, server.EventComplete:
				var jr server.JobResponse
				if err := json.Unmarshal([]byte(msg.data), &jr); err != nil {
					logger.Warn("skipping malformed event", zap.String("event", msg.event), zap.Error(err))
					return true
				}
				select {
				case out <- notify.EventFromJob(jobFromResponse(&jr)):
				case <-ctx.Done():
					return false
				}
				return msg.event != server.EventComplete
			case server.EventError:
				logger.Warn("event stream error", zap.String("data", msg.data))
				return false
			}
			return true
		})
		if err != nil && ctx.Err() == nil {
			logger.Debug("event stream ended", zap.Error(err))
		}
	}()
	return out, nil
}

// readSSE parses an event stream and calls fn for each event until fn
// returns false or the stream ends.
func readSSE(r io.Reader, fn func(sseMessage) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxEventBytes)

	var msg sseMessage
	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if msg.event == "" && len(data) == 0 {
				continue
			}
			if msg.event == "" {
				msg.event = "message"
			}
			msg.data = strings.Join(data, "\n")
			if !fn(msg) {
				return nil
			}
			msg, data = sseMessage{}, nil
		case strings.HasPrefix(line, ":"):
			// comment / heartbeat
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				msg.event = value
			case "data":
				data = append(data, value)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}
