package world

import "voxelrealm.ai/internal/protocol"

// broadcastToWorld sends an event to every in-world session of worldName
// except the connection exclude.
func (s *Server) broadcastToWorld(worldName, action string, payload any, exclude string) {
	ev := protocol.Event(action, payload)
	for id, c := range s.clients {
		if id == exclude || c.sess == nil || !c.sess.InWorld || c.sess.WorldName != worldName {
			continue
		}
		s.send(c, ev)
	}
}

// broadcastToAll reaches every logged-in session. Only presence events use it.
func (s *Server) broadcastToAll(action string, payload any, exclude string) {
	ev := protocol.Event(action, payload)
	for id, c := range s.clients {
		if id == exclude || c.sess == nil {
			continue
		}
		s.send(c, ev)
	}
}

func (s *Server) worldPeers(worldID int64) []*Session {
	var out []*Session
	for _, c := range s.clients {
		if c.sess != nil && c.sess.InWorld && c.sess.WorldID == worldID {
			out = append(out, c.sess)
		}
	}
	return out
}
