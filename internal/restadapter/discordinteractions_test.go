package restadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"summarybot-ng/internal/commandhandler"
	"summarybot-ng/internal/domain"
)

type fakeCommandHandler struct {
	summarizeResult commandhandler.Result
	summarizeErr    error
}

func (f *fakeCommandHandler) HandleSummarize(ctx context.Context, inv commandhandler.Invocation, req domain.SummaryRequest) (commandhandler.Result, error) {
	return f.summarizeResult, f.summarizeErr
}

func (f *fakeCommandHandler) HandleEstimate(ctx context.Context, inv commandhandler.Invocation, req domain.SummaryRequest) (commandhandler.Result, error) {
	return f.summarizeResult, f.summarizeErr
}

func newInteractionsAdapter(cmds CommandHandler) *Adapter {
	return New(&fakeEngine{}, newFakeStore(), cmds, nil, nil, Config{}, AuthConfig{})
}

func TestDiscordInteractionsPing(t *testing.T) {
	a := newInteractionsAdapter(&fakeCommandHandler{})
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	body, _ := json.Marshal(discordInteraction{Type: discordPing})
	resp, err := http.Post(srv.URL+"/v1/discord/interactions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var got discordInteractionResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Type != discordPong {
		t.Fatalf("expected PONG type %d, got %d", discordPong, got.Type)
	}
}

func TestDiscordInteractionsSummarizeDispatches(t *testing.T) {
	cmds := &fakeCommandHandler{summarizeResult: commandhandler.Result{Text: "here is your summary"}}
	a := newInteractionsAdapter(cmds)
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	body, _ := json.Marshal(discordInteraction{
		Type:      discordApplicationCommand,
		GuildID:   "g1",
		ChannelID: "c1",
		Member:    &discordMember{User: discordUser{ID: "u1"}},
		Data:      &discordCommandData{Name: "summarize"},
	})
	resp, err := http.Post(srv.URL+"/v1/discord/interactions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var got discordInteractionResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Data == nil || got.Data.Content != "here is your summary" {
		t.Fatalf("expected dispatched summary text, got %+v", got.Data)
	}
}

func TestDiscordInteractionsUnknownCommandRejected(t *testing.T) {
	a := newInteractionsAdapter(&fakeCommandHandler{})
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	body, _ := json.Marshal(discordInteraction{
		Type: discordApplicationCommand,
		Data: &discordCommandData{Name: "not-a-real-command"},
	})
	resp, err := http.Post(srv.URL+"/v1/discord/interactions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDiscordInteractionsRouteAbsentWithoutCommandHandler(t *testing.T) {
	a := newTestAdapter(newFakeStore(), &fakeEngine{})
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/discord/interactions", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 when no command handler is wired, got %d", resp.StatusCode)
	}
}
