package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Tattsum/almuerzo/internal/domain"
)

// mockMessageRepository はMessageRepositoryのモック実装
type mockMessageRepository struct {
	mu         sync.Mutex
	messages   map[string]*domain.Message
	replies    map[string][]*domain.Message
	historyErr error
	repliesErr error
	block      chan struct{}
	calls      int
}

func newMockMessageRepository() *mockMessageRepository {
	return &mockMessageRepository{
		messages: make(map[string]*domain.Message),
		replies:  make(map[string][]*domain.Message),
	}
}

func (m *mockMessageRepository) addMessage(channelID, ts, text string, reactions ...domain.Reaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[channelID+"/"+ts] = &domain.Message{
		ID:        ts,
		Text:      text,
		ChannelID: channelID,
		Reactions: reactions,
	}
}

func (m *mockMessageRepository) addReply(channelID, threadTS, ts, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := channelID + "/" + threadTS
	m.replies[key] = append(m.replies[key], &domain.Message{
		ID:        ts,
		Text:      text,
		ChannelID: channelID,
		ThreadTS:  threadTS,
	})
}

func (m *mockMessageRepository) setReactions(channelID, ts string, reactions ...domain.Reaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[channelID+"/"+ts].Reactions = reactions
}

func (m *mockMessageRepository) FindByTimestamp(ctx context.Context, channelID, ts string) (*domain.Message, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	msg, ok := m.messages[channelID+"/"+ts]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ts, domain.ErrNotFound)
	}
	c := *msg
	return &c, nil
}

func (m *mockMessageRepository) FindThreadReplies(ctx context.Context, channelID, threadTS string, limit int) ([]*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.repliesErr != nil {
		return nil, m.repliesErr
	}
	replies := m.replies[channelID+"/"+threadTS]
	if len(replies) > limit {
		replies = replies[:limit]
	}
	return replies, nil
}

type publishedMessage struct {
	Channel string
	TS      string
	Text    string
}

// mockPublisher はMessagePublisherのモック実装
type mockPublisher struct {
	mu        sync.Mutex
	posts     []publishedMessage
	updates   []publishedMessage
	deletes   []publishedMessage
	postErr   error
	updateErr error
	deleteErr error
	nextTS    int
	gates     map[string]*updateGate
}

// updateGate は一回の更新を途中で止める
type updateGate struct {
	started chan struct{}
	release chan struct{}
}

// blockUpdate は ts への次の更新を release が呼ばれるまで止める
// started は更新が止まった時点で閉じられる
func (m *mockPublisher) blockUpdate(ts string) (started <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gates == nil {
		m.gates = make(map[string]*updateGate)
	}
	g := &updateGate{started: make(chan struct{}), release: make(chan struct{})}
	m.gates[ts] = g
	return g.started, func() { close(g.release) }
}

func (m *mockPublisher) waitGate(ts string) {
	m.mu.Lock()
	g, ok := m.gates[ts]
	delete(m.gates, ts)
	m.mu.Unlock()
	if !ok {
		return
	}
	close(g.started)
	<-g.release
}

func (m *mockPublisher) Post(ctx context.Context, channelID, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postErr != nil {
		return "", m.postErr
	}
	m.nextTS++
	ts := fmt.Sprintf("900.%06d", m.nextTS)
	m.posts = append(m.posts, publishedMessage{Channel: channelID, TS: ts, Text: text})
	return ts, nil
}

func (m *mockPublisher) Update(ctx context.Context, channelID, ts, text string) error {
	m.waitGate(ts)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates = append(m.updates, publishedMessage{Channel: channelID, TS: ts, Text: text})
	return nil
}

func (m *mockPublisher) Delete(ctx context.Context, channelID, ts string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletes = append(m.deletes, publishedMessage{Channel: channelID, TS: ts})
	return nil
}

func (m *mockPublisher) lastUpdate() publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.updates) == 0 {
		return publishedMessage{}
	}
	return m.updates[len(m.updates)-1]
}

// mockSnapshotRepository はSnapshotRepositoryのモック実装
// 保存時にJSONへ変換して、実際の永続化と同じ形で読み戻せるようにする
type mockSnapshotRepository struct {
	mu    sync.Mutex
	data  []byte
	saves int
	err   error
}

func (m *mockSnapshotRepository) Load(ctx context.Context) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	snapshot := &domain.Snapshot{Messages: map[domain.RosterKey]*domain.Roster{}}
	if m.data == nil {
		return snapshot, nil
	}
	if err := json.Unmarshal(m.data, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (m *mockSnapshotRepository) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	m.data = data
	m.saves++
	return nil
}

func (m *mockSnapshotRepository) saved() *domain.Snapshot {
	snapshot, _ := m.Load(context.Background())
	return snapshot
}

// mockTyping はTypingIndicatorのモック実装
type mockTyping struct {
	mu       sync.Mutex
	channels []string
}

func (m *mockTyping) StartTyping(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, channelID)
}

var errTransport = fmt.Errorf("chat.update: %w", domain.ErrTransport)
