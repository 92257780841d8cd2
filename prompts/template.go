package prompts

import (
	"text/template"
)

// BaseTemplate 基础指令模板
var BaseTemplate *template.Template

// DirectTemplate 私聊模板
var DirectTemplate *template.Template

// GroupTemplate 群聊模板
var GroupTemplate *template.Template

// RoleplayTemplate 角色扮演模板
var RoleplayTemplate *template.Template

func init() {
	BaseTemplate = template.Must(template.New("Base").Parse(Base))
	DirectTemplate = template.Must(template.New("Direct").Parse(Direct))
	GroupTemplate = template.Must(template.New("Group").Parse(Group))
	RoleplayTemplate = template.Must(template.New("Roleplay").Parse(Roleplay))
}
