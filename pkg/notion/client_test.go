package notion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func TestMockClientSatisfiesInterface(t *testing.T) {
	t.Parallel()
	var _ Client = (*MockClient)(nil)
}

func TestQueryAll_FollowsCursor(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "p1"}},
		HasMore:    true,
		NextCursor: notionapi.Cursor("c2"),
	}, nil).Once()
	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == notionapi.Cursor("c2")
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "p2"}},
	}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-1", nil)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, notionapi.ObjectID("p2"), pages[1].ID)
	mc.AssertExpectations(t)
}

func TestQueryAll_Error(t *testing.T) {
	mc := new(MockClient)
	mc.On("QueryDatabase", mock.Anything, "db-1", mock.Anything).Return(nil, errors.New("502"))

	_, err := QueryAll(context.Background(), mc, "db-1", nil)
	assert.Error(t, err)
}

func TestUpsertByKey_Creates(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		f, ok := req.Filter.(notionapi.PropertyFilter)
		return ok && f.Property == "Session ID" && f.RichText.Equals == "s-1"
	})).Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		_, hasKey := req.Properties["Session ID"]
		return req.Parent.DatabaseID == notionapi.DatabaseID("db-1") && hasKey
	})).Return(&notionapi.Page{ID: "new-page"}, nil).Once()

	id, err := UpsertByKey(ctx, mc, "db-1", "Session ID", "s-1", notionapi.Properties{
		"Name": Title("Pass"),
	})
	require.NoError(t, err)
	assert.Equal(t, "new-page", id)
	mc.AssertExpectations(t)
}

func TestUpsertByKey_Updates(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "old-page"}}}, nil).Once()
	mc.On("UpdatePage", ctx, "old-page", mock.AnythingOfType("*notionapi.PageUpdateRequest")).
		Return(&notionapi.Page{ID: "old-page"}, nil).Once()

	id, err := UpsertByKey(ctx, mc, "db-1", "Session ID", "s-1", notionapi.Properties{
		"Ledger Confirmed": Checkbox(true),
		"Price":            Number(3),
		"Date":             Date(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	assert.Equal(t, "old-page", id)
	mc.AssertExpectations(t)
	mc.AssertNotCalled(t, "CreatePage", mock.Anything, mock.Anything)
}

func TestText_Truncates(t *testing.T) {
	t.Parallel()
	long := make([]byte, 2500)
	for i := range long {
		long[i] = 'a'
	}
	p := Text(string(long))
	assert.Len(t, p.RichText[0].Text.Content, 2000)
	assert.Equal(t, "Acquire", Select("Acquire").Select.Name)
}

func TestWithRateLimit(t *testing.T) {
	t.Parallel()
	c := NewClient("tok", WithRateLimit(0)).(*limitedClient)
	assert.Nil(t, c.limiter)
	c = NewClient("tok", WithRateLimit(5)).(*limitedClient)
	require.NotNil(t, c.limiter)
	assert.Equal(t, 5, c.limiter.Burst())
}
