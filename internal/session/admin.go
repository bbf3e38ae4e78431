package session

import (
	"strconv"

	"github.com/solatis/fixengine/internal/dictionary"
	"github.com/solatis/fixengine/internal/message"
)

// Session-level tags.
const (
	tagBeginSeqNo          = 7
	tagEndSeqNo            = 16
	tagNewSeqNo            = 36
	tagPossDupFlag         = 43
	tagRefSeqNum           = 45
	tagSenderCompID        = 49
	tagTargetCompID        = 56
	tagText                = 58
	tagEncryptMethod       = 98
	tagHeartBtInt          = 108
	tagTestReqID           = 112
	tagOrigSendingTime     = 122
	tagGapFillFlag         = 123
	tagResetSeqNumFlag     = 141
	tagRefTagID            = 371
	tagRefMsgType          = 372
	tagSessionRejectReason = 373
	tagUsername            = 553
	tagPassword            = 554
)

func newLogon(heartbeatSecs int, reset bool, username, password string) *message.Message {
	m := message.New(message.TypeLogon)
	m.Body.SetInt(tagEncryptMethod, 0)
	m.Body.SetInt(tagHeartBtInt, heartbeatSecs)
	if reset {
		m.Body.SetBool(tagResetSeqNumFlag, true)
	}
	if username != "" {
		m.Body.Set(tagUsername, username)
	}
	if password != "" {
		m.Body.Set(tagPassword, password)
	}
	return m
}

func newHeartbeat(testReqID string) *message.Message {
	m := message.New(message.TypeHeartbeat)
	if testReqID != "" {
		m.Body.Set(tagTestReqID, testReqID)
	}
	return m
}

func newTestRequest(id string) *message.Message {
	m := message.New(message.TypeTestRequest)
	m.Body.Set(tagTestReqID, id)
	return m
}

func newResendRequest(begin, end int) *message.Message {
	m := message.New(message.TypeResendRequest)
	m.Body.SetInt(tagBeginSeqNo, begin)
	m.Body.SetInt(tagEndSeqNo, end)
	return m
}

// newReject references the rejected message by sequence number, and by
// type and tag when known.
func newReject(refSeq int, refMsgType string, refTag, reason int, text string) *message.Message {
	m := message.New(message.TypeReject)
	m.Body.SetInt(tagRefSeqNum, refSeq)
	if refTag > 0 {
		m.Body.SetInt(tagRefTagID, refTag)
	}
	if refMsgType != "" {
		m.Body.Set(tagRefMsgType, refMsgType)
	}
	m.Body.SetInt(tagSessionRejectReason, reason)
	if text != "" {
		m.Body.Set(tagText, text)
	}
	return m
}

func newGapFill(newSeqNo int) *message.Message {
	m := message.New(message.TypeSequenceReset)
	m.Body.SetBool(tagGapFillFlag, true)
	m.Body.SetInt(tagNewSeqNo, newSeqNo)
	return m
}

// gapFillFor covers the sequence number of msg with a gap fill carrying
// the same envelope, so the number is never left unfilled.
func gapFillFor(msg *message.Message) *message.Message {
	seq, _ := msg.SeqNum()
	fill := newGapFill(seq + 1)
	for _, tag := range []int{dictionary.TagBeginString, tagSenderCompID, tagTargetCompID, dictionary.TagMsgSeqNum,
		dictionary.TagSendingTime, tagPossDupFlag, tagOrigSendingTime} {
		if v, ok := msg.Header.Get(tag); ok {
			fill.Header.Set(tag, v)
		}
	}
	return fill
}

func newLogout(text string) *message.Message {
	m := message.New(message.TypeLogout)
	if text != "" {
		m.Body.Set(tagText, text)
	}
	return m
}

func flag(s *message.FieldSet, tag int) bool {
	v, err := s.GetBool(tag)
	return err == nil && v
}

func intField(s *message.FieldSet, tag int) (int, bool) {
	v, ok := s.Get(tag)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}
