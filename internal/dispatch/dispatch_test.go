package dispatch

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zkdrop/dropbot/internal/config"
	"github.com/zkdrop/dropbot/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeMessenger struct {
	sent   []int64
	failOn map[int64]error
}

func (f *fakeMessenger) Send(ctx context.Context, chatID int64, text string) error {
	if err, ok := f.failOn[chatID]; ok {
		return err
	}
	f.sent = append(f.sent, chatID)
	return nil
}

type fakeDirectory struct {
	recipients []int64
	dropped    []int64
	listErr    error
}

func (f *fakeDirectory) ListActiveRecipients(ctx context.Context) ([]int64, error) {
	return f.recipients, f.listErr
}

func (f *fakeDirectory) MarkRecipientUnreachable(ctx context.Context, chatID int64) error {
	f.dropped = append(f.dropped, chatID)
	return nil
}

func newTestEngine(msgr Messenger, dir Directory) *Engine {
	// 1ms pacing keeps the test fast.
	return New(msgr, dir, config.DispatchConfig{SendPauseMS: 1}, 999)
}

func TestBroadcast_AllDelivered(t *testing.T) {
	msgr := &fakeMessenger{}
	dir := &fakeDirectory{recipients: []int64{1, 2, 3}}

	out, err := newTestEngine(msgr, dir).Broadcast(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, Outcome{Sent: 3}, out)
	assert.Equal(t, []int64{1, 2, 3}, msgr.sent)
}

func TestBroadcast_TransientFailureIsolated(t *testing.T) {
	msgr := &fakeMessenger{failOn: map[int64]error{
		2: resilience.NewTransientError(eris.New("flood wait"), 429),
	}}
	dir := &fakeDirectory{recipients: []int64{1, 2, 3}}

	out, err := newTestEngine(msgr, dir).Broadcast(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, out.Sent)
	assert.Equal(t, 1, out.Failed)
	// Transient failures never drop the recipient.
	assert.Empty(t, dir.dropped)
	assert.Equal(t, []int64{1, 3}, msgr.sent)
}

func TestBroadcast_PermanentFailureDropsRecipient(t *testing.T) {
	msgr := &fakeMessenger{failOn: map[int64]error{
		2: resilience.NewPermanentError(eris.New("bot was blocked by the user")),
	}}
	dir := &fakeDirectory{recipients: []int64{1, 2, 3}}

	out, err := newTestEngine(msgr, dir).Broadcast(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, out.Sent)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, 1, out.Dropped)
	assert.Equal(t, []int64{2}, dir.dropped)
}

func TestBroadcast_ListError(t *testing.T) {
	dir := &fakeDirectory{listErr: eris.New("db down")}
	_, err := newTestEngine(&fakeMessenger{}, dir).Broadcast(context.Background(), "hello")
	assert.Error(t, err)
}

func TestBroadcast_ContextCancelStopsRound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msgr := &fakeMessenger{}
	dir := &fakeDirectory{recipients: []int64{1, 2, 3}}

	out, err := newTestEngine(msgr, dir).Broadcast(ctx, "hello")
	assert.Error(t, err)
	assert.Equal(t, 0, out.Sent)
}

func TestSendAdmin(t *testing.T) {
	msgr := &fakeMessenger{}
	e := newTestEngine(msgr, &fakeDirectory{})

	require.NoError(t, e.SendAdmin(context.Background(), "report"))
	assert.Equal(t, []int64{999}, msgr.sent)
}

func TestSendAdmin_Unconfigured(t *testing.T) {
	msgr := &fakeMessenger{}
	e := New(msgr, &fakeDirectory{}, config.DispatchConfig{}, 0)

	require.NoError(t, e.SendAdmin(context.Background(), "report"))
	assert.Empty(t, msgr.sent)
}
