package producer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedSender struct {
	mu    sync.Mutex
	errs  []error
	calls int
	last  *sarama.ProducerMessage
}

func (s *scriptedSender) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = msg
	if len(s.errs) == 0 {
		return 0, int64(s.calls), nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return 0, 0, err
}

func TestProduceRetriesTransientErrors(t *testing.T) {
	s := &scriptedSender{errs: []error{sarama.ErrLeaderNotAvailable, errors.New("broken pipe")}}
	p := newProducer(s, "mail", nil, zap.NewNop().Sugar(), 3, nil)

	require.NoError(t, p.ProduceMessage(context.Background(), "42", []byte(`{}`)))
	assert.Equal(t, 3, s.calls)

	key, err := s.last.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "42", string(key))
	assert.Equal(t, "mail", s.last.Topic)
}

func TestProduceStopsOnPermanentError(t *testing.T) {
	s := &scriptedSender{errs: []error{sarama.ErrMessageSizeTooLarge}}
	p := newProducer(s, "mail", nil, zap.NewNop().Sugar(), 5, nil)

	err := p.ProduceMessage(context.Background(), "1", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrMessageSizeTooLarge)
	assert.Equal(t, 1, s.calls)
}

func TestProduceGivesUpAfterMaxAttempts(t *testing.T) {
	s := &scriptedSender{errs: []error{sarama.ErrRequestTimedOut, sarama.ErrRequestTimedOut}}
	p := newProducer(s, "mail", nil, zap.NewNop().Sugar(), 2, nil)

	err := p.ProduceMessage(context.Background(), "1", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, 2, s.calls)
}

func TestHealthCheckWithoutBroker(t *testing.T) {
	p := newProducer(&scriptedSender{}, "mail", nil, zap.NewNop().Sugar(), 1, nil)
	assert.Error(t, p.HealthCheck(context.Background()))
}

func TestClassifyRetry(t *testing.T) {
	assert.Equal(t, "broker_timeout", ClassifyRetry(sarama.ErrRequestTimedOut))
	assert.Equal(t, "client_deadline", ClassifyRetry(context.DeadlineExceeded))
	assert.Equal(t, "client_deadline", ClassifyRetry(fmt.Errorf("send: %w", context.Canceled)))
	assert.Equal(t, "net_timeout", ClassifyRetry(&net.OpError{Op: "dial", Net: "tcp", Err: os.ErrDeadlineExceeded}))
	assert.Equal(t, "other", ClassifyRetry(errors.New("x")))
}
