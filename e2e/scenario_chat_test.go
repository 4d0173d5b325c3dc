package e2e

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type testChatSuite struct {
	BaseWsSuite
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, &testChatSuite{})
}

func byUser(name string) func(map[string]any) bool {
	return func(e map[string]any) bool { return e["username"] == name }
}

func (s *testChatSuite) TestTwoParticipants() {
	t := s.T()
	suffix := uuid.NewString()[:8]
	aliceName, bobName := "alice-"+suffix, "bob-"+suffix
	var alice, bob *Peer
	var firstID float64

	s.Run("Step 1: alice joins and posts", func() {
		alice = s.Dial(t, aliceName)
		alice.Send(map[string]any{"action": "username", "username": aliceName})
		alice.Expect("join", byUser(aliceName))

		alice.Send(map[string]any{"action": "add", "message": "hi", "username": aliceName})
		posted := alice.Expect("message", byUser(aliceName))
		s.Equal("hi", posted["message"])
		firstID = posted["ID"].(float64)
	})

	s.Run("Step 2: bob joins and gets the history first", func() {
		bob = s.Dial(t, bobName)
		bob.Send(map[string]any{"action": "username", "username": bobName})
		replayed := bob.Expect("message", byUser(aliceName))
		s.Equal(firstID, replayed["ID"])
		bob.Expect("join", byUser(bobName))
		alice.Expect("join", byUser(bobName))
	})

	s.Run("Step 3: the name is taken", func() {
		impostor := s.Dial(t, "impostor")
		impostor.Send(map[string]any{"action": "username", "username": aliceName})
		alert := impostor.Expect("alert", nil)
		s.Equal("Username is already in use. Please choose a different username.", alert["message"])
		impostor.Close()
	})

	s.Run("Step 4: bob posts and both see it", func() {
		bob.Send(map[string]any{"action": "add", "message": "yo", "username": bobName})
		second := bob.Expect("message", byUser(bobName))
		s.Greater(second["ID"].(float64), firstID)
		s.Equal(second, alice.Expect("message", byUser(bobName)))
	})

	s.Run("Step 5: only the author deletes", func() {
		bob.Send(map[string]any{"action": "del", "id": firstID, "username": bobName})
		alert := bob.Expect("alert", nil)
		s.Equal("Only the author of this message is authorized to Delete.", alert["message"])

		alice.Send(map[string]any{"action": "del", "id": firstID, "username": aliceName})
		for _, peer := range []*Peer{alice, bob} {
			deleted := peer.Expect("del", byUser(aliceName))
			s.Equal(firstID, deleted["id"])
		}
	})

	s.Run("Step 6: bob leaves", func() {
		bob.Close()
		left := alice.Expect("left", byUser(bobName))
		s.Equal(bobName+" left the group chat", left["message"])
	})

	s.Run("Step 7: deleting again is silent", func() {
		alice.Send(map[string]any{"action": "del", "id": firstID, "username": aliceName})
		alice.Silent()
	})
}
