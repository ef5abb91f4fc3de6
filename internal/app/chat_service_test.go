package app

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/rag"
)

func seedFile(t *testing.T, files *memFiles, userID uint, name string, status model.FileStatus) uint {
	t.Helper()
	asset := &model.FileAsset{UserID: userID, Filename: name, Status: status, Metadata: model.Metadata{}}
	require.NoError(t, files.Create(context.Background(), asset))
	return asset.ID
}

func TestChatSendAnswersAndStoresTurns(t *testing.T) {
	files := newMemFiles()
	id := seedFile(t, files, 7, "contract.pdf", model.FileStatusReady)
	page := 3
	asker := &stubAsker{answer: rag.Answer{
		Response:   "The fee is 10%. [contract.pdf, page 3]",
		Citations:  []model.Citation{{Filename: "contract.pdf", PageNumber: &page}},
		ChunksUsed: 1,
	}}
	messages := &memMessages{}
	history := newMemHistory()
	svc := NewChatService(files, messages, history, asker, 5, nil)

	res, err := svc.Send(context.Background(), ChatInput{UserID: 7, Message: "  what is the fee? ", FileIDs: []uint{id, id}})
	require.NoError(t, err)

	_, err = uuid.Parse(res.ConversationID)
	assert.NoError(t, err)
	assert.Equal(t, 1, res.ChunksUsed)
	require.Len(t, res.Citations, 1)
	assert.Equal(t, "contract.pdf", res.Citations[0].Filename)

	assert.Equal(t, "what is the fee?", asker.got.Question)
	assert.Equal(t, []uint{id}, asker.got.FileIDs)
	assert.Equal(t, uint(7), asker.got.UserID)

	require.Len(t, messages.saved, 2)
	assert.Equal(t, model.RoleUser, messages.saved[0].Role)
	assert.Equal(t, model.RoleAssistant, messages.saved[1].Role)
	assert.Equal(t, 2, history.appended)
}

func TestChatSendUsesCachedHistory(t *testing.T) {
	convID := uuid.NewString()
	history := newMemHistory()
	history.data[convID] = []model.Message{
		{Role: model.RoleUser, Content: "one"},
		{Role: model.RoleAssistant, Content: "two"},
		{Role: model.RoleUser, Content: "three"},
	}
	asker := &stubAsker{answer: rag.Answer{Response: "ok"}}
	messages := &memMessages{recent: []model.Message{{Content: "from db"}}}
	svc := NewChatService(newMemFiles(), messages, history, asker, 2, nil)

	_, err := svc.Send(context.Background(), ChatInput{UserID: 7, Message: "next", ConversationID: convID})
	require.NoError(t, err)
	require.Len(t, asker.got.History, 2)
	assert.Equal(t, "two", asker.got.History[0].Content)
}

func TestChatSendFallsBackToStoredHistory(t *testing.T) {
	convID := uuid.NewString()
	history := newMemHistory()
	history.getErr = errBoom
	asker := &stubAsker{answer: rag.Answer{Response: "ok"}}
	messages := &memMessages{recent: []model.Message{{Role: model.RoleUser, Content: "from db"}}}
	svc := NewChatService(newMemFiles(), messages, history, asker, 5, nil)

	_, err := svc.Send(context.Background(), ChatInput{UserID: 7, Message: "next", ConversationID: convID})
	require.NoError(t, err)
	require.Len(t, asker.got.History, 1)
	assert.Equal(t, "from db", asker.got.History[0].Content)
}

func TestChatSendRejectsBadInput(t *testing.T) {
	svc := NewChatService(newMemFiles(), nil, nil, &stubAsker{}, 5, nil)
	ctx := context.Background()

	_, err := svc.Send(ctx, ChatInput{UserID: 7, Message: "   "})
	assert.ErrorIs(t, err, ErrMessageEmpty)

	_, err = svc.Send(ctx, ChatInput{UserID: 7, Message: "hi", ConversationID: "not-a-uuid"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Send(ctx, ChatInput{Message: "hi"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestChatSendFileChecks(t *testing.T) {
	ctx := context.Background()
	files := newMemFiles()
	ready := seedFile(t, files, 7, "ready.pdf", model.FileStatusReady)
	busy := seedFile(t, files, 7, "busy.pdf", model.FileStatusProcessing)
	broken := seedFile(t, files, 7, "broken.pdf", model.FileStatusFailed)
	uploaded := seedFile(t, files, 7, "new.pdf", model.FileStatusUploaded)
	foreign := seedFile(t, files, 8, "theirs.pdf", model.FileStatusReady)
	svc := NewChatService(files, nil, nil, &stubAsker{answer: rag.Answer{Response: "ok"}}, 5, nil)

	_, err := svc.Send(ctx, ChatInput{UserID: 7, Message: "q", FileIDs: []uint{ready, foreign}})
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = svc.Send(ctx, ChatInput{UserID: 7, Message: "q", FileIDs: []uint{ready, busy}})
	var stateErr *FileStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "File(s) still processing: busy.pdf. Please wait for processing to complete.", stateErr.Message)

	_, err = svc.Send(ctx, ChatInput{UserID: 7, Message: "q", FileIDs: []uint{broken}})
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, []string{"broken.pdf"}, stateErr.Files)

	_, err = svc.Send(ctx, ChatInput{UserID: 7, Message: "q", FileIDs: []uint{uploaded}})
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "Files are not ready for chat. Please wait for processing to complete.", stateErr.Message)

	_, err = svc.Send(ctx, ChatInput{UserID: 7, Message: "q", FileIDs: []uint{ready, broken}})
	assert.NoError(t, err)
}

