package session

import (
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/solatis/fixengine/internal/types"
)

func TestProperty_OutboundSequence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("fresh sends carry consecutive sequence numbers", prop.ForAll(
		func(ops []int) bool {
			m, clock := newMachine(t, types.RoleInitiator)
			var fresh []int
			collect := func(effects []Effect) {
				for _, msg := range sent(effects) {
					if dup, _ := msg.Header.GetBool(tagPossDupFlag); dup {
						continue
					}
					seq, _ := msg.SeqNum()
					fresh = append(fresh, seq)
				}
			}

			collect(m.Step(Connected{}))
			collect(m.Step(Received{Msg: peer("A", 1, "98", "0", "108", "30")}))
			inSeq := 2
			for _, op := range ops {
				switch op {
				case 0:
					collect(m.Step(Submit{Msg: order("x")}))
				case 1:
					clock.advance(30 * time.Second)
					collect(m.Step(TimerFired{Timer: TimerHeartbeat}))
				case 2:
					collect(m.Step(Received{Msg: peer("1", inSeq, "112", "t")}))
					inSeq++
				case 3:
					collect(m.Step(Received{Msg: peer("2", inSeq, "7", "1", "16", "0")}))
					inSeq++
				}
			}

			for i, seq := range fresh {
				if seq != i+1 {
					return false
				}
			}
			return m.NextOutbound() == len(fresh)+1 && m.Phase() == PhaseActive
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}

func TestProperty_InboundDeliveredInOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("any arrival order delivers each message once in sequence", prop.ForAll(
		func(keys []int) bool {
			m, _ := newMachine(t, types.RoleInitiator)
			m.Step(Connected{})
			m.Step(Received{Msg: peer("A", 1, "98", "0", "108", "30")})

			arrival := make([]int, len(keys))
			for i := range arrival {
				arrival[i] = i + 2
			}
			sort.SliceStable(arrival, func(i, j int) bool { return keys[arrival[i]-2] < keys[arrival[j]-2] })

			var got []int
			for _, seq := range arrival {
				for _, msg := range delivered(m.Step(Received{Msg: peer("8", seq)}), false) {
					s, _ := msg.SeqNum()
					got = append(got, s)
				}
			}

			if len(got) != len(keys) {
				return false
			}
			for i, seq := range got {
				if seq != i+2 {
					return false
				}
			}
			return m.Phase() == PhaseActive && m.Buffered() == 0 && m.NextInbound() == len(keys)+2
		},
		gen.SliceOf(gen.IntRange(0, 50)),
	))

	properties.TestingRun(t)
}
