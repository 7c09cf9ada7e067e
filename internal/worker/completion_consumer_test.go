package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docforge/features/document"
	"docforge/internal/graph"
	"docforge/internal/queue"
)

type mockUpdater struct {
	mock.Mock
}

func (m *mockUpdater) Apply(ctx context.Context, snap graph.Snapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

type mockDocStore struct {
	mock.Mock
}

func (m *mockDocStore) Get(ctx context.Context, id string) (*document.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*document.Document), args.Error(1)
}

func (m *mockDocStore) TransitionStatus(ctx context.Context, id string, from, to document.Status, failureMsg string) error {
	args := m.Called(ctx, id, from, to, failureMsg)
	return args.Error(0)
}

func taskMessage(t *testing.T, task queue.CompletionTask, attempts uint16) *nsq.Message {
	t.Helper()
	body, err := json.Marshal(task)
	require.NoError(t, err)
	m := nsq.NewMessage(nsq.MessageID{}, body)
	m.Attempts = attempts
	return m
}

func processingDoc() *document.Document {
	return &document.Document{
		ID:       "doc-1",
		Title:    "Mission Report",
		Domain:   "SPACE",
		Authors:  []string{"N. Armstrong"},
		Keywords: []string{"lunar"},
		Status:   document.StatusProcessing,
	}
}

func TestHandleMessage_AppliesGraphAndCompletes(t *testing.T) {
	updater := new(mockUpdater)
	docs := new(mockDocStore)
	consumer := NewCompletionConsumer(updater, docs, 3)

	docs.On("Get", mock.Anything, "doc-1").Return(processingDoc(), nil)
	updater.On("Apply", mock.Anything, mock.MatchedBy(func(s graph.Snapshot) bool {
		return s.DocumentID == "doc-1" && s.Title == "Mission Report" && s.Domain == "SPACE"
	})).Return(nil).Once()
	docs.On("TransitionStatus", mock.Anything, "doc-1", document.StatusProcessing, document.StatusCompleted, "").
		Return(nil).Once()

	msg := taskMessage(t, queue.CompletionTask{DocumentID: "doc-1", CorrelationID: "corr-1"}, 1)
	require.NoError(t, consumer.HandleMessage(msg))

	updater.AssertExpectations(t)
	docs.AssertExpectations(t)
}

func TestHandleMessage_EmptyBodyDropped(t *testing.T) {
	consumer := NewCompletionConsumer(new(mockUpdater), new(mockDocStore), 3)
	assert.NoError(t, consumer.HandleMessage(nsq.NewMessage(nsq.MessageID{}, nil)))
}

func TestHandleMessage_PoisonPillDropped(t *testing.T) {
	updater := new(mockUpdater)
	docs := new(mockDocStore)
	consumer := NewCompletionConsumer(updater, docs, 3)

	msg := nsq.NewMessage(nsq.MessageID{}, []byte("not json"))
	assert.NoError(t, consumer.HandleMessage(msg))

	docs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestHandleMessage_MissingDocumentIDDropped(t *testing.T) {
	docs := new(mockDocStore)
	consumer := NewCompletionConsumer(new(mockUpdater), docs, 3)

	msg := taskMessage(t, queue.CompletionTask{}, 1)
	assert.NoError(t, consumer.HandleMessage(msg))
	docs.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestHandleMessage_TerminalDocumentDropped(t *testing.T) {
	// Redelivery after a finished run must be a no-op: terminal states never
	// move again and the graph is not rewritten.
	updater := new(mockUpdater)
	docs := new(mockDocStore)
	consumer := NewCompletionConsumer(updater, docs, 3)

	doc := processingDoc()
	doc.Status = document.StatusCompleted
	docs.On("Get", mock.Anything, "doc-1").Return(doc, nil)

	msg := taskMessage(t, queue.CompletionTask{DocumentID: "doc-1"}, 2)
	assert.NoError(t, consumer.HandleMessage(msg))

	updater.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
	docs.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleMessage_GraphFailureBelowMaxRequestsRedelivery(t *testing.T) {
	updater := new(mockUpdater)
	docs := new(mockDocStore)
	consumer := NewCompletionConsumer(updater, docs, 3)

	cause := errors.New("graph db down")
	docs.On("Get", mock.Anything, "doc-1").Return(processingDoc(), nil)
	updater.On("Apply", mock.Anything, mock.Anything).Return(cause).Once()

	msg := taskMessage(t, queue.CompletionTask{DocumentID: "doc-1"}, 1)
	err := consumer.HandleMessage(msg)
	assert.ErrorIs(t, err, cause)

	docs.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleMessage_GraphFailureAtMaxMarksFailed(t *testing.T) {
	updater := new(mockUpdater)
	docs := new(mockDocStore)
	consumer := NewCompletionConsumer(updater, docs, 3)

	docs.On("Get", mock.Anything, "doc-1").Return(processingDoc(), nil)
	updater.On("Apply", mock.Anything, mock.Anything).Return(errors.New("graph db down")).Once()
	docs.On("TransitionStatus", mock.Anything, "doc-1", document.StatusProcessing, document.StatusFailed,
		"graph update: graph db down").Return(nil).Once()

	msg := taskMessage(t, queue.CompletionTask{DocumentID: "doc-1"}, 3)
	assert.NoError(t, consumer.HandleMessage(msg), "exhausted tasks must not be redelivered")

	docs.AssertExpectations(t)
}

func TestHandleMessage_ConcurrentFinalizationDropped(t *testing.T) {
	// The status guard lost the race: someone else finalized the record
	// between the graph update and the transition.
	updater := new(mockUpdater)
	docs := new(mockDocStore)
	consumer := NewCompletionConsumer(updater, docs, 3)

	docs.On("Get", mock.Anything, "doc-1").Return(processingDoc(), nil)
	updater.On("Apply", mock.Anything, mock.Anything).Return(nil).Once()
	docs.On("TransitionStatus", mock.Anything, "doc-1", document.StatusProcessing, document.StatusCompleted, "").
		Return(document.ErrInvalidTransition).Once()

	msg := taskMessage(t, queue.CompletionTask{DocumentID: "doc-1"}, 1)
	assert.NoError(t, consumer.HandleMessage(msg))
}

func TestHandleMessage_LoadFailureRetriesThenFails(t *testing.T) {
	docs := new(mockDocStore)
	consumer := NewCompletionConsumer(new(mockUpdater), docs, 3)

	cause := errors.New("db unreachable")
	docs.On("Get", mock.Anything, "doc-1").Return(nil, cause)

	msg := taskMessage(t, queue.CompletionTask{DocumentID: "doc-1"}, 1)
	assert.ErrorIs(t, consumer.HandleMessage(msg), cause)

	docs.On("TransitionStatus", mock.Anything, "doc-1", document.StatusProcessing, document.StatusFailed,
		mock.Anything).Return(nil).Once()
	msg = taskMessage(t, queue.CompletionTask{DocumentID: "doc-1"}, 3)
	assert.NoError(t, consumer.HandleMessage(msg))
}
