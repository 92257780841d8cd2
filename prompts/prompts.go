// Package prompts 指令模板
package prompts

import _ "embed" // 嵌入提示词

// Base 基础指令
//
//go:embed prompts/base.md
var Base string

// Direct 1:1 私聊场景指令
//
//go:embed prompts/direct.md
var Direct string

// Group 群聊场景指令
//
//go:embed prompts/group.md
var Group string

// Roleplay 角色扮演场景指令
//
//go:embed prompts/roleplay.md
var Roleplay string

// AckAssistant 不支持system角色时的合成确认回复
const AckAssistant = "Instruction fully read."

// Rejection 审核拦截时的固定回复
const Rejection = "I'm sorry, but this message was flagged by moderation and cannot be processed."
