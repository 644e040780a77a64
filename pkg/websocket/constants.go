package websocket

import "fmt"

// 入站事件类型
const (
	EventPing              = "ping"
	EventJoinGroup         = "joinGroup"
	EventLeaveGroup        = "leaveGroup"
	EventLocationUpdate    = "locationUpdate"
	EventSendMessage       = "sendMessage"
	EventSendDirectMessage = "sendDirectMessage"
	EventJoinCommunity     = "joinCommunity"
	EventLeaveCommunity    = "leaveCommunity"
)

// 出站事件类型
const (
	EventPong             = "pong"
	EventError            = "error"
	EventInitialMessages  = "initialMessages"
	EventGroupLocations   = "groupLocations"
	EventNewMessage       = "newMessage"
	EventNewDirectMessage = "newDirectMessage"
	EventSOSAlert         = "sosAlert"
	EventDeviationAlert   = "deviationAlert"
	EventDelayAlert       = "delayAlert"
)

// RoomGroup 群组房间键
func RoomGroup(groupID uint) string {
	return fmt.Sprintf("group:%d", groupID)
}

// RoomCommunity 社区房间键
func RoomCommunity(communityID uint) string {
	return fmt.Sprintf("community:%d", communityID)
}
