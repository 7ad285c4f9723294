// Package notes exposes a small key-value notebook over tools and a resource
// template. Notes live in a storage.Storage and are scoped to the
// authenticated caller, or to one of the caller's sessions.
package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vyvu99/mcp-server/auth"
	"github.com/vyvu99/mcp-server/mcpservice"
	"github.com/vyvu99/mcp-server/storage"
)

// AnonymousUser owns notes written by unauthenticated callers.
const AnonymousUser = "anonymous"

// URITemplate addresses a single note in the caller's user scope.
const URITemplate = "notes://{key}"

var errNoSession = errors.New("session scope requires a stateful session")

// Notes serves note tools backed by a storage.Storage.
type Notes struct {
	store storage.Storage
	log   *slog.Logger
}

// New returns a Notes over store.
func New(store storage.Storage, log *slog.Logger) *Notes {
	if log == nil {
		log = slog.Default()
	}
	return &Notes{store: store, log: log}
}

type SetArgs struct {
	Key        string `json:"key" jsonschema:"minLength=1,description=Note key"`
	Value      string `json:"value" jsonschema:"description=Note body"`
	TTLSeconds int    `json:"ttl_seconds,omitempty" jsonschema:"minimum=0,description=Expire the note after this many seconds"`
	Scope      string `json:"scope,omitempty" jsonschema:"enum=user,enum=session,description=Where the note is kept (default user)"`
}

type KeyArgs struct {
	Key   string `json:"key" jsonschema:"minLength=1"`
	Scope string `json:"scope,omitempty" jsonschema:"enum=user,enum=session"`
}

type ListArgs struct {
	Scope string `json:"scope,omitempty" jsonschema:"enum=user,enum=session"`
}

// Register adds the note tools and the notes:// resource to reg.
func (n *Notes) Register(reg *mcpservice.Registry) error {
	if err := reg.RegisterTool(mcpservice.NewTool("notes_set", n.set,
		mcpservice.WithToolDescription("Stores a note under key"))); err != nil {
		return err
	}
	if err := reg.RegisterTool(mcpservice.NewTool("notes_get", n.get,
		mcpservice.WithToolDescription("Reads the note stored under key"))); err != nil {
		return err
	}
	if err := reg.RegisterTool(mcpservice.NewTool("notes_delete", n.delete,
		mcpservice.WithToolDescription("Deletes the note stored under key"))); err != nil {
		return err
	}
	if err := reg.RegisterTool(mcpservice.NewTool("notes_list", n.list,
		mcpservice.WithToolDescription("Lists note keys"))); err != nil {
		return err
	}
	return reg.RegisterResource(mcpservice.Resource{
		URI:         URITemplate,
		Name:        "note",
		Description: "A note in the caller's user scope",
		MimeType:    "text/plain",
	}, mcpservice.SharedResource(n.read))
}

// namespace resolves the storage scope for a call.
func namespace(req *mcpservice.Request, scope string) (storage.Option, error) {
	uid := AnonymousUser
	if req.HTTPRequest != nil {
		if u, ok := auth.UserFromContext(req.HTTPRequest.Context()); ok && u.UserID() != "" {
			uid = u.UserID()
		}
	}
	switch scope {
	case "", "user":
		return storage.WithUser(uid), nil
	case "session":
		if req.SessionID == "" {
			return nil, errNoSession
		}
		return storage.WithUserSession(uid, req.SessionID), nil
	default:
		return nil, fmt.Errorf("unknown scope %q", scope)
	}
}

func (n *Notes) set(ctx context.Context, args SetArgs, ec mcpservice.Context, req *mcpservice.Request) (any, error) {
	ns, err := namespace(req, args.Scope)
	if err != nil {
		return mcpservice.Errorf("%v", err), nil
	}
	opts := []storage.Option{ns}
	if args.TTLSeconds > 0 {
		opts = append(opts, storage.WithTTL(time.Duration(args.TTLSeconds)*time.Second))
	}
	if err := n.store.Set(ctx, args.Key, []byte(args.Value), opts...); err != nil {
		return nil, err
	}
	ec.Debug(ctx, "note stored", map[string]any{"key": args.Key})
	n.log.DebugContext(ctx, "notes.set", slog.String("key", args.Key))
	return mcpservice.TextResult("stored " + args.Key), nil
}

func (n *Notes) get(ctx context.Context, args KeyArgs, _ mcpservice.Context, req *mcpservice.Request) (any, error) {
	ns, err := namespace(req, args.Scope)
	if err != nil {
		return mcpservice.Errorf("%v", err), nil
	}
	item, err := n.store.Get(ctx, args.Key, ns)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return mcpservice.Errorf("note %q not found", args.Key), nil
	}
	return mcpservice.TextResult(string(item.Data)), nil
}

func (n *Notes) delete(ctx context.Context, args KeyArgs, _ mcpservice.Context, req *mcpservice.Request) (any, error) {
	ns, err := namespace(req, args.Scope)
	if err != nil {
		return mcpservice.Errorf("%v", err), nil
	}
	if err := n.store.Delete(ctx, ns, storage.WithKey(args.Key)); err != nil {
		return nil, err
	}
	return mcpservice.TextResult("deleted " + args.Key), nil
}

func (n *Notes) list(ctx context.Context, args ListArgs, _ mcpservice.Context, req *mcpservice.Request) (any, error) {
	ns, err := namespace(req, args.Scope)
	if err != nil {
		return mcpservice.Errorf("%v", err), nil
	}
	keys, err := n.store.Keys(ctx, ns)
	if err != nil {
		return nil, err
	}
	return mcpservice.TextResult(strings.Join(keys, "\n")), nil
}

func (n *Notes) read(ctx context.Context, params map[string]any, _ mcpservice.Context, req *mcpservice.Request) (any, error) {
	key, _ := params["key"].(string)
	ns, err := namespace(req, "user")
	if err != nil {
		return nil, err
	}
	item, err := n.store.Get(ctx, key, ns)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("note %q not found", key)
	}
	return mcpservice.TextContents("notes://"+key, "text/plain", string(item.Data)), nil
}
