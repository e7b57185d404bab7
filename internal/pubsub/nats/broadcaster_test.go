package nats

import (
	"anchor/internal/config"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gitlab.com/nevasik7/alerting/logger"
)

// MockLogger implements logger.Logger for tests
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string) {
	m.Called(msg)
}

func (m *MockLogger) Debugf(msg string, args ...interface{}) {
	m.Called(msg, args)
}

func (m *MockLogger) Info(msg string) {
	m.Called(msg)
}

func (m *MockLogger) Warn(msg string) {
	m.Called(msg)
}

func (m *MockLogger) Warnf(msg string, args ...interface{}) {
	m.Called(msg, args)
}

func (m *MockLogger) Error(msg string) {
	m.Called(msg)
}

func (m *MockLogger) Fatal(msg string) {
	m.Called(msg)
}

func (m *MockLogger) Fatalf(msg string, args ...interface{}) {
	m.Called(msg, args)
}

func (m *MockLogger) Panic(msg string) {
	m.Called(msg)
}

func (m *MockLogger) Panicf(msg string, args ...interface{}) {
	m.Called(msg, args)
}

func (m *MockLogger) WithField(key string, value interface{}) logger.Logger {
	m.Called(key, value)
	return m
}

func (m *MockLogger) WithFields(fields map[string]interface{}) logger.Logger {
	m.Called(fields)
	return m
}

func (m *MockLogger) Infof(format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *MockLogger) Errorf(format string, args ...interface{}) {
	m.Called(format, args)
}

// ------------------------ tests not real connection ------------------------
func TestNew_NilConfig(t *testing.T) {
	mockLogger := new(MockLogger)

	client, err := New(mockLogger, nil)

	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Equal(t, "nats config is required", err.Error())
	mockLogger.AssertNotCalled(t, "Infof", mock.Anything, mock.Anything)
}

func TestNew_EmptyURL(t *testing.T) {
	mockLogger := new(MockLogger)

	client, err := New(mockLogger, &config.NATSConfig{})

	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Equal(t, "nats url is required", err.Error())
}

func TestNilConnection(t *testing.T) {
	mockLogger := new(MockLogger)
	client := &Client{nc: nil, log: mockLogger}

	assert.False(t, client.Ready())
	assert.Equal(t, nats.DISCONNECTED, client.Status())
	assert.Error(t, client.Health(context.Background()))
	assert.Error(t, client.Publish(context.Background(), "batch", 1))
	assert.NoError(t, client.Close())
	mockLogger.AssertNotCalled(t, "Infof", mock.Anything, mock.Anything)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "batch", (&Client{}).Subject("batch"))
	assert.Equal(t, "anchor.batch", (&Client{prefix: "anchor"}).Subject("batch"))
}

// ------------------------ tests in-memory nats connection ------------------------
func runTestWithInMemoryNATS(t *testing.T, testFunc func(*testing.T, *server.Server, string)) {
	t.Helper()

	// run in-memory NATS server
	opts := natsserver.DefaultTestOptions
	opts.Port = -1 // random port
	s := natsserver.RunServer(&opts)
	defer s.Shutdown()

	testFunc(t, s, s.ClientURL())
}

func TestNew_Success(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		mockLogger := new(MockLogger)
		mockLogger.On("Infof", "Connected to NATS successfully, url=%s", mock.Anything).Once()

		client, err := New(mockLogger, &config.NATSConfig{URL: url, BroadcastPrefix: "anchor."})

		require.NoError(t, err)
		require.NotNil(t, client)
		assert.True(t, client.Ready())
		assert.Equal(t, nats.CONNECTED, client.Status())
		assert.NoError(t, client.Health(context.Background()))
		assert.Equal(t, "anchor", client.prefix)

		mockLogger.AssertExpectations(t)
		client.nc.Close()
	})
}

func TestPublish_DeliversJSON(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		mockLogger := new(MockLogger)
		mockLogger.On("Infof", mock.Anything, mock.Anything)
		mockLogger.On("Debugf", mock.Anything, mock.Anything)

		client, err := New(mockLogger, &config.NATSConfig{URL: url, BroadcastPrefix: "anchor"})
		require.NoError(t, err)
		defer client.Close()

		sub, err := nats.Connect(url)
		require.NoError(t, err)
		defer sub.Close()

		msgs := make(chan *nats.Msg, 1)
		_, err = sub.ChanSubscribe("anchor.batch", msgs)
		require.NoError(t, err)
		require.NoError(t, sub.Flush())

		payload := map[string]string{"batchId": "batch-1", "merkleRoot": "0xabc"}
		require.NoError(t, client.Publish(context.Background(), "batch", payload))

		select {
		case m := <-msgs:
			var got map[string]string
			require.NoError(t, json.Unmarshal(m.Data, &got))
			assert.Equal(t, payload, got)
		case <-time.After(2 * time.Second):
			t.Fatal("message not delivered")
		}
	})
}

func TestPublish_Errors(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		mockLogger := new(MockLogger)
		mockLogger.On("Infof", mock.Anything, mock.Anything)

		client, err := New(mockLogger, &config.NATSConfig{URL: url})
		require.NoError(t, err)
		defer client.Close()

		// not encodable
		assert.Error(t, client.Publish(context.Background(), "batch", make(chan int)))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, client.Publish(ctx, "batch", 1), context.Canceled)
	})
}

func TestClose_Idempotent(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		mockLogger := new(MockLogger)
		mockLogger.On("Infof", "Connected to NATS successfully, url=%s", mock.Anything).Once()
		mockLogger.On("Infof", "NATS connection closed gracefully", mock.Anything).Once()

		client, err := New(mockLogger, &config.NATSConfig{URL: url})
		require.NoError(t, err)

		assert.NoError(t, client.Close())
		assert.NoError(t, client.Close())

		assert.False(t, client.Ready())
		mockLogger.AssertNumberOfCalls(t, "Infof", 2) // connect + close
	})
}
