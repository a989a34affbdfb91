package guard

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeChecker struct {
	exists    bool
	existsErr error
	recent    bool
	recentErr error

	gotWindow time.Duration
}

func (f *fakeChecker) CandidateExists(ctx context.Context, link string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeChecker) WasNotifiedRecently(ctx context.Context, link string, window time.Duration) (bool, error) {
	f.gotWindow = window
	return f.recent, f.recentErr
}

func TestShouldProcess(t *testing.T) {
	tests := []struct {
		name    string
		checker fakeChecker
		want    bool
	}{
		{"new link", fakeChecker{}, true},
		{"already stored", fakeChecker{exists: true}, false},
		{"recently notified", fakeChecker{recent: true}, false},
		{"dup check error fails closed", fakeChecker{existsErr: eris.New("db down")}, false},
		{"recency check error fails closed", fakeChecker{recentErr: eris.New("db down")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(&tt.checker, 24*time.Hour)
			got := g.ShouldProcess(context.Background(), "https://zealy.io/c/zk")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_DefaultCooldown(t *testing.T) {
	checker := &fakeChecker{}
	g := New(checker, 0)
	g.ShouldProcess(context.Background(), "https://zealy.io/c/zk")
	assert.Equal(t, 24*time.Hour, checker.gotWindow)
}
