package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shoptalk/internal/channel"
	"shoptalk/pkg/models"
)

func TestSMSSend(t *testing.T) {
	var gotBody, gotTo string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/Accounts/AC123/Messages.json") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		gotTo = r.PostForm.Get("To")
		gotBody = r.PostForm.Get("Body")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"sid": "SM900", "status": "queued"})
	}))
	defer server.Close()

	p := NewSMSProvider("AC123", "token", server.URL)
	result, err := p.Send(context.Background(), SendRequest{
		To:      "+15551230000",
		From:    "+15559998888",
		Content: "your order shipped",
		Kind:    KindText,
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if result.ChannelMessageID != "SM900" {
		t.Errorf("ChannelMessageID = %q", result.ChannelMessageID)
	}
	if result.Status != models.StatusPending {
		t.Errorf("Status = %q, expected pending for queued carrier status", result.Status)
	}
	if gotTo != "+15551230000" || gotBody != "your order shipped" {
		t.Errorf("form To/Body = %q/%q", gotTo, gotBody)
	}
}

func TestSMSSendTruncatesWithMarker(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotBody = r.PostForm.Get("Body")
		json.NewEncoder(w).Encode(map[string]string{"sid": "SM1", "status": "sent"})
	}))
	defer server.Close()

	p := NewSMSProvider("AC123", "token", server.URL)
	long := strings.Repeat("a", 2000)
	if _, err := p.Send(context.Background(), SendRequest{To: "+15551230000", From: "+1", Content: long, Kind: KindText}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if len(gotBody) > smsMaxLength {
		t.Errorf("sent body length %d exceeds limit %d", len(gotBody), smsMaxLength)
	}
	if !strings.HasSuffix(gotBody, truncateMarker) {
		t.Errorf("truncated body missing explicit marker, got suffix %q", gotBody[len(gotBody)-20:])
	}
}

func TestSMSSendRejectsTemplate(t *testing.T) {
	p := NewSMSProvider("AC123", "token", "http://127.0.0.1:1")
	_, err := p.Send(context.Background(), SendRequest{To: "+15551230000", Kind: KindTemplate, TemplateID: "order_update"})
	if !errors.Is(err, channel.ErrValidation) {
		t.Errorf("template on SMS: error %v does not match ErrValidation", err)
	}
}

func TestSMSSendCarrierError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "invalid 'To' number"})
	}))
	defer server.Close()

	p := NewSMSProvider("AC123", "token", server.URL)
	_, err := p.Send(context.Background(), SendRequest{To: "+15551230000", From: "+1", Content: "hi", Kind: KindText})
	if !errors.Is(err, channel.ErrProviderSend) {
		t.Errorf("carrier 4xx: error %v does not match ErrProviderSend", err)
	}
	var se *SendError
	if !errors.As(err, &se) || se.Reason != "invalid 'To' number" {
		t.Errorf("expected SendError with carrier reason, got %v", err)
	}
}

func TestSMSGetStatusIsNotFound(t *testing.T) {
	p := NewSMSProvider("AC123", "token", "")
	_, err := p.GetStatus(context.Background(), "SM1")
	if !errors.Is(err, channel.ErrNotFound) {
		t.Errorf("GetStatus error %v does not match ErrNotFound", err)
	}
}

func TestSMSValidateAddress(t *testing.T) {
	p := NewSMSProvider("AC123", "token", "")
	tests := []struct {
		address string
		valid   bool
	}{
		{"+15551230000", true},
		{"15551230000", true},
		{"not-a-number", false},
		{"", false},
		{"+0123", false},
	}
	for _, test := range tests {
		if got := p.ValidateAddress(test.address); got != test.valid {
			t.Errorf("ValidateAddress(%q) = %v, expected %v", test.address, got, test.valid)
		}
	}
}

func TestWhatsAppSendText(t *testing.T) {
	var got waSendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/P1/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []map[string]string{{"id": "wamid.OUT1"}},
		})
	}))
	defer server.Close()

	p := NewWhatsAppProvider(server.URL, "tok", "P1", false)
	result, err := p.Send(context.Background(), SendRequest{To: "15551230000", Content: "found 2 candles", Kind: KindText})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if result.ChannelMessageID != "wamid.OUT1" {
		t.Errorf("ChannelMessageID = %q", result.ChannelMessageID)
	}
	if got.Type != "text" || got.Text == nil || got.Text.Body != "found 2 candles" {
		t.Errorf("payload = %+v", got)
	}
}

func TestWhatsAppSendTemplate(t *testing.T) {
	var got waSendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []map[string]string{{"id": "wamid.OUT2"}},
		})
	}))
	defer server.Close()

	p := NewWhatsAppProvider(server.URL, "tok", "P1", true)
	_, err := p.Send(context.Background(), SendRequest{
		To:             "15551230000",
		Kind:           KindTemplate,
		TemplateID:     "order_update",
		TemplateParams: []string{"1042", "shipped"},
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if got.Type != "template" || got.Template == nil || got.Template.Name != "order_update" {
		t.Errorf("payload = %+v", got)
	}
	if len(got.Template.Components) != 1 || len(got.Template.Components[0].Parameters) != 2 {
		t.Errorf("template components = %+v", got.Template.Components)
	}
}

func TestWhatsAppFreeTextOnTemplateOnlyChannel(t *testing.T) {
	p := NewWhatsAppProvider("http://127.0.0.1:1", "tok", "P1", true)
	_, err := p.Send(context.Background(), SendRequest{To: "15551230000", Content: "hi", Kind: KindText})
	if !errors.Is(err, channel.ErrValidation) {
		t.Errorf("free text on template-only channel: error %v does not match ErrValidation", err)
	}
}

// fakeProvider counts sends and fails with a configurable error sequence
type fakeProvider struct {
	kind    channel.Kind
	calls   int
	results []error
}

func (f *fakeProvider) Channel() channel.Kind { return f.kind }

func (f *fakeProvider) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.results) && f.results[idx] != nil {
		return nil, f.results[idx]
	}
	return &SendResult{ChannelMessageID: fmt.Sprintf("MSG%d", idx), Status: models.StatusSent}, nil
}

func (f *fakeProvider) ValidateAddress(string) bool           { return true }
func (f *fakeProvider) Health(context.Context) bool           { return true }
func (f *fakeProvider) GetStatus(context.Context, string) (models.MessageStatus, error) {
	return "", ErrMessageNotFound
}

func TestGatewayRetriesOnceOnTransientFailure(t *testing.T) {
	connErr := fmt.Errorf("dial tcp: refused: %w", channel.ErrConnection)
	fake := &fakeProvider{kind: channel.KindSMS, results: []error{connErr, nil}}
	g := NewGateway(fake)

	result, err := g.Send(context.Background(), channel.KindSMS, SendRequest{To: "+1", Content: "hi", Kind: KindText})
	if err != nil {
		t.Fatalf("Send returned error after retry: %v", err)
	}
	if fake.calls != 2 {
		t.Errorf("provider called %d times, expected 2", fake.calls)
	}
	if result.ChannelMessageID != "MSG1" {
		t.Errorf("ChannelMessageID = %q", result.ChannelMessageID)
	}
}

func TestGatewayGivesUpAfterOneRetry(t *testing.T) {
	connErr := fmt.Errorf("dial tcp: refused: %w", channel.ErrConnection)
	fake := &fakeProvider{kind: channel.KindSMS, results: []error{connErr, connErr, connErr}}
	g := NewGateway(fake)

	_, err := g.Send(context.Background(), channel.KindSMS, SendRequest{To: "+1", Content: "hi", Kind: KindText})
	if !errors.Is(err, channel.ErrProviderSend) {
		t.Errorf("exhausted retries: error %v does not match ErrProviderSend", err)
	}
	if fake.calls != 2 {
		t.Errorf("provider called %d times, expected exactly 2 (one retry)", fake.calls)
	}
}

func TestGatewayDoesNotRetryValidationErrors(t *testing.T) {
	valErr := validationError(channel.KindSMS, "template sends are not supported on SMS")
	fake := &fakeProvider{kind: channel.KindSMS, results: []error{valErr}}
	g := NewGateway(fake)

	_, err := g.Send(context.Background(), channel.KindSMS, SendRequest{To: "+1", Kind: KindTemplate})
	if !errors.Is(err, channel.ErrValidation) {
		t.Errorf("error %v does not match ErrValidation", err)
	}
	if fake.calls != 1 {
		t.Errorf("provider called %d times, expected 1 (no retry)", fake.calls)
	}
}

func TestGatewayUnknownChannel(t *testing.T) {
	g := NewGateway()
	_, err := g.Send(context.Background(), channel.KindSMS, SendRequest{To: "+1", Content: "hi"})
	if !errors.Is(err, channel.ErrValidation) {
		t.Errorf("unknown channel: error %v does not match ErrValidation", err)
	}
}

func TestTruncatePreservesShortContent(t *testing.T) {
	if got := truncate("short", 1600); got != "short" {
		t.Errorf("truncate modified short content: %q", got)
	}
}
