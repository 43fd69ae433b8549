package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/linesmerrill/evchat/models"
)

func TestDecodeMessageCamelCase(t *testing.T) {
	m, err := models.DecodeMessage([]byte(`{"id":42,"conversationId":"C1","senderId":"U1","receiverId":"S9","content":"hi","timestamp":"2024-05-01T10:00:00Z","edited":true}`))
	require.NoError(t, err)

	assert.Equal(t, "42", m.ID)
	assert.Equal(t, "C1", m.ConversationID)
	assert.Equal(t, "U1", m.SenderID)
	assert.Equal(t, "S9", m.ReceiverID)
	assert.Equal(t, "hi", m.Content)
	assert.True(t, m.Edited)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), m.Timestamp)
}

func TestDecodeMessageSnakeCaseAndNested(t *testing.T) {
	m, err := models.DecodeMessage([]byte(`{"message_id":"m-7","conversation":{"id":"C2"},"sender":{"accountId":"U2"},"receiver_id":"S1","message":"xin chào","created_at":1714557600000}`))
	require.NoError(t, err)

	assert.Equal(t, "m-7", m.ID)
	assert.Equal(t, "C2", m.ConversationID)
	assert.Equal(t, "U2", m.SenderID)
	assert.Equal(t, "S1", m.ReceiverID)
	assert.Equal(t, "xin chào", m.Content)
	assert.Equal(t, time.UnixMilli(1714557600000).UTC(), m.Timestamp)
	assert.False(t, m.Edited)
}

func TestDecodeMessageLocalDateTimeArray(t *testing.T) {
	m, err := models.DecodeMessage([]byte(`{"id":"1","sentAt":[2024,5,1,10,30,15,0]}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 30, 15, 0, time.UTC), m.Timestamp)
}

func TestDecodeMessageMalformed(t *testing.T) {
	_, err := models.DecodeMessage([]byte(`{not json`))
	assert.ErrorIs(t, err, models.ErrMalformedPayload)
}

func TestConversationFromJSONCustomerView(t *testing.T) {
	shapes := []string{
		`{"conversationId":"C1","staffAccountId":"S9","staffName":"Linh","lastMessage":"hello","unreadCount":2}`,
		`{"conversation_id":"C1","staff_account_id":"S9","staff_name":"Linh","last_message":{"content":"hello"},"unread_count":2}`,
		`{"id":"C1","staff":{"id":"staff-record-3","accountId":"S9","fullName":"Linh"},"lastMessagePreview":"hello","unread":2}`,
	}
	for _, s := range shapes {
		c := models.ConversationFromJSON(gjson.Parse(s), models.RoleCustomer)
		assert.Equal(t, "C1", c.ID, s)
		assert.Equal(t, "S9", c.CounterpartAccountID, s)
		assert.Equal(t, "Linh", c.CounterpartName, s)
		assert.Equal(t, "hello", c.LastMessagePreview, s)
		assert.Equal(t, 2, c.UnreadCount, s)
	}
}

func TestConversationFromJSONIgnoresStaffRecordID(t *testing.T) {
	c := models.ConversationFromJSON(gjson.Parse(`{"conversationId":"C1","staffId":"staff-record-3","staff":{"id":"staff-record-3"}}`), models.RoleCustomer)
	assert.Equal(t, "C1", c.ID)
	assert.Empty(t, c.CounterpartAccountID)
}

func TestConversationFromJSONIgnoresCustomerProfileID(t *testing.T) {
	c := models.ConversationFromJSON(gjson.Parse(`{"conversationId":"C1","customerId":"profile-8","customer_id":"profile-8"}`), models.RoleStaff)
	assert.Equal(t, "C1", c.ID)
	assert.Empty(t, c.CounterpartAccountID)

	c = models.ConversationFromJSON(gjson.Parse(`{"conversationId":"C1","customerId":"profile-8","customerAccountId":"U5"}`), models.RoleStaff)
	assert.Equal(t, "U5", c.CounterpartAccountID)
}

func TestConversationFromJSONStaffView(t *testing.T) {
	c := models.ConversationFromJSON(gjson.Parse(`{"id":7,"customer":{"accountId":"U5","name":"Minh"},"staffAccountId":"S9"}`), models.RoleStaff)
	assert.Equal(t, "7", c.ID)
	assert.Equal(t, "U5", c.CounterpartAccountID)
	assert.Equal(t, "Minh", c.CounterpartName)
}

func TestListFromJSON(t *testing.T) {
	bare, err := models.ListFromJSON([]byte(`[{"id":1},{"id":2}]`))
	require.NoError(t, err)
	assert.Len(t, bare, 2)

	wrapped, err := models.ListFromJSON([]byte(`{"data":[{"id":1}]}`))
	require.NoError(t, err)
	assert.Len(t, wrapped, 1)

	custom, err := models.ListFromJSON([]byte(`{"messages":[{"id":1},{"id":2},{"id":3}]}`), "messages")
	require.NoError(t, err)
	assert.Len(t, custom, 3)

	empty, err := models.ListFromJSON([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestObjectFromJSONUnwrapsData(t *testing.T) {
	r, err := models.ObjectFromJSON([]byte(`{"data":{"conversationId":"C1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "C1", r.Get("conversationId").String())
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, models.RoleStaff, models.ParseRole("staff"))
	assert.Equal(t, models.RoleAdmin, models.ParseRole("ROLE_ADMIN"))
	assert.Equal(t, models.RoleCustomer, models.ParseRole(""))
	assert.True(t, models.RoleAdmin.IsStaff())
	assert.False(t, models.ParseRole("technician").IsStaff())
}
