package mcpserver

import (
	"maps"

	"github.com/vyvu99/mcp-server/mcp"
	"github.com/vyvu99/mcp-server/mcpservice"
)

// Negotiate derives the capability advertisement from the registry and the
// caller supplied base. Every non-empty category is advertised with
// listChanged=true unless base already sets it; resources also advertise
// resourceTemplates. The result shares no pointers with base.
func Negotiate(reg *mcpservice.Registry, base mcp.ServerCapabilities) mcp.ServerCapabilities {
	out := cloneCapabilities(base)
	tools, resources, prompts := reg.Counts()

	if tools > 0 && out.Tools == nil {
		out.Tools = &mcp.ListChangedCapability{ListChanged: true}
	}
	if resources > 0 {
		if out.Resources == nil {
			out.Resources = &mcp.ResourcesCapability{ListChanged: true}
		}
		if out.ResourceTemplates == nil {
			out.ResourceTemplates = &mcp.ListChangedCapability{ListChanged: true}
		}
	}
	if prompts > 0 && out.Prompts == nil {
		out.Prompts = &mcp.ListChangedCapability{ListChanged: true}
	}
	return out
}

func cloneCapabilities(c mcp.ServerCapabilities) mcp.ServerCapabilities {
	out := mcp.ServerCapabilities{}
	if c.Experimental != nil {
		out.Experimental = maps.Clone(c.Experimental)
	}
	if c.Logging != nil {
		out.Logging = &struct{}{}
	}
	if c.Completions != nil {
		out.Completions = &struct{}{}
	}
	if c.Prompts != nil {
		v := *c.Prompts
		out.Prompts = &v
	}
	if c.Resources != nil {
		v := *c.Resources
		out.Resources = &v
	}
	if c.ResourceTemplates != nil {
		v := *c.ResourceTemplates
		out.ResourceTemplates = &v
	}
	if c.Tools != nil {
		v := *c.Tools
		out.Tools = &v
	}
	return out
}
