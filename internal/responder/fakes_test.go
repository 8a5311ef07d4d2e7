package responder

import (
	"context"
	"errors"
	"sync"

	"github.com/teemow/awayreply/internal/gmail"
)

// fakeMailbox is an in-memory Mailbox.
type fakeMailbox struct {
	mu sync.Mutex

	refs     []gmail.MessageRef
	messages map[string]*gmail.Message
	listErr  error
	getErr   map[string]error
	labelErr error

	lists   int
	gets    []string
	labeled map[string][]string // threadID -> label IDs
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages: map[string]*gmail.Message{},
		getErr:   map[string]error{},
		labeled:  map[string][]string{},
	}
}

// add registers a listed message with the given headers.
func (f *fakeMailbox) add(id, threadID string, labels []string, headers ...gmail.Header) {
	f.refs = append(f.refs, gmail.MessageRef{ID: id, ThreadID: threadID})
	f.messages[id] = &gmail.Message{ID: id, ThreadID: threadID, LabelIDs: labels, Headers: headers}
}

func (f *fakeMailbox) ListMessages(ctx context.Context, query string, maxResults int64) ([]gmail.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.refs, nil
}

func (f *fakeMailbox) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, id)
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	msg, ok := f.messages[id]
	if !ok {
		return nil, gmail.ErrMessageNotFound
	}
	return msg, nil
}

func (f *fakeMailbox) AddThreadLabels(ctx context.Context, threadID string, labelIDs ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.labelErr != nil {
		return f.labelErr
	}
	f.labeled[threadID] = append(f.labeled[threadID], labelIDs...)
	return nil
}

func (f *fakeMailbox) labelCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ids := range f.labeled {
		n += len(ids)
	}
	return n
}

// fakeSender records sent messages.
type fakeSender struct {
	mu   sync.Mutex
	sent []*gmail.EmailMessage
	err  error
}

func (f *fakeSender) Send(ctx context.Context, msg *gmail.EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

var errBoom = errors.New("boom")
