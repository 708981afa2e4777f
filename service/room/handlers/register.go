package handlers

import "CoReader/service/room"

// RegisterAll 把全部入站帧的 handler 挂到 dispatcher 上，main 里调一次
func RegisterAll(s *room.Server) {
	d := s.Disp()
	d.Register(NewJoinHandler())
	d.Register(NewHighlightHandler())
	d.Register(NewCommentHandler())
	d.Register(NewProgressHandler())
}
