// ABOUTME: Tests for the stdio transport loop.
// ABOUTME: Covers the handshake, ordered dispatch, and malformed input handling.

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/2389/clinic-gateway/internal/dispatch"
)

func newTestDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	registry, err := dispatch.NewRegistry([]dispatch.Tool{
		{
			Name:        "echo",
			Description: "echoes its arguments",
			Handler: func(_ context.Context, args json.RawMessage) (any, error) {
				return map[string]string{"got": string(args)}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return dispatch.NewDispatcher(registry, testLogger())
}

func decodeLines(t *testing.T, out *bytes.Buffer) []*dispatch.Response {
	t.Helper()
	var responses []*dispatch.Response
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp dispatch.Response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("decoding output line %q: %v", line, err)
		}
		responses = append(responses, &resp)
	}
	return responses
}

func TestStdio_InitializeAndList(t *testing.T) {
	s := NewStdio(newTestDispatcher(t), testLogger())

	input := `{"jsonrpc":"2.0","id":1,"method":"initialize"}
{"jsonrpc":"2.0","id":2,"method":"tools/list"}
`
	var out bytes.Buffer
	if err := s.Run(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	responses := decodeLines(t, &out)
	if len(responses) != 2 {
		t.Fatalf("got %d responses, want 2", len(responses))
	}
	if responses[0].Error != nil {
		t.Errorf("initialize error: %+v", responses[0].Error)
	}
	init, ok := responses[0].Result.(map[string]any)
	if !ok {
		t.Fatalf("initialize result type = %T", responses[0].Result)
	}
	if init["protocolVersion"] != latestProtocolVersion {
		t.Errorf("protocolVersion = %v", init["protocolVersion"])
	}
	if responses[1].Error != nil {
		t.Errorf("tools/list error: %+v", responses[1].Error)
	}
}

func TestStdio_OrderedResponses(t *testing.T) {
	s := NewStdio(newTestDispatcher(t), testLogger())

	var input strings.Builder
	const calls = 10
	for i := 1; i <= calls; i++ {
		fmt.Fprintf(&input, `{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":"echo","arguments":{"n":%d}}}`+"\n", i, i)
	}

	var out bytes.Buffer
	if err := s.Run(context.Background(), strings.NewReader(input.String()), &out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	responses := decodeLines(t, &out)
	if len(responses) != calls {
		t.Fatalf("got %d responses, want %d", len(responses), calls)
	}
	for i, resp := range responses {
		if string(resp.ID) != fmt.Sprintf("%d", i+1) {
			t.Errorf("response %d has id %s, want %d (out of arrival order)", i, resp.ID, i+1)
		}
	}
}

func TestStdio_MalformedLine(t *testing.T) {
	s := NewStdio(newTestDispatcher(t), testLogger())

	input := "{this is not json\n" + `{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n"
	var out bytes.Buffer
	if err := s.Run(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	responses := decodeLines(t, &out)
	if len(responses) != 2 {
		t.Fatalf("got %d responses, want 2", len(responses))
	}
	if responses[0].Error == nil || responses[0].Error.Code != dispatch.CodeParseError {
		t.Errorf("first response = %+v, want parse error", responses[0])
	}
	// The loop must survive the bad line and serve the next request.
	if responses[1].Error != nil {
		t.Errorf("second response error: %+v", responses[1].Error)
	}
}

func TestStdio_NotificationsProduceNoOutput(t *testing.T) {
	s := NewStdio(newTestDispatcher(t), testLogger())

	input := `{"jsonrpc":"2.0","method":"notifications/initialized"}
`
	var out bytes.Buffer
	if err := s.Run(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != "" {
		t.Errorf("notification produced output %q", out.String())
	}
}

func TestStdio_CancelledContext(t *testing.T) {
	s := NewStdio(newTestDispatcher(t), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}
`
	var out bytes.Buffer
	if err := s.Run(ctx, strings.NewReader(input), &out); err == nil {
		t.Error("Run ignored cancelled context")
	}
}
