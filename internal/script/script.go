// Package script hosts the routing script in a goja JavaScript runtime.
// The script language's own lexer/parser/compiler is out of scope per
// §1 ("the core consumes a host-language API surface exposed to
// scripts, not the language implementation"); this package is the host
// API surface, built on github.com/dop251/goja, a named, out-of-pack
// ecosystem choice since no repo in the retrieved pack embeds a
// scripting language.
package script

import (
	"context"
	"fmt"
	"net"

	"github.com/dop251/goja"
	"github.com/miekg/dns"

	"github.com/compassd/dcompass/internal/cache"
	"github.com/compassd/dcompass/internal/dnsmsg"
	"github.com/compassd/dcompass/internal/matcher/cidr"
	"github.com/compassd/dcompass/internal/matcher/domain"
	"github.com/compassd/dcompass/internal/matcher/geoip"
)

// InitError aborts startup when the script's init() entry point fails,
// per §4.7/§7.
type InitError struct {
	Err error
}

func (e *InitError) Error() string { return fmt.Sprintf("script: init failed: %v", e.Err) }
func (e *InitError) Unwrap() error { return e.Err }

// RuntimeError wraps an uncaught failure inside route(), surfaced as
// ServFail to the client and logged at warn, per §4.7/§7.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string { return fmt.Sprintf("script: route failed: %v", e.Err) }
func (e *RuntimeError) Unwrap() error { return e.Err }

// Resolver dispatches a query to an upstream tag under a policy. The
// Router's upstream registry implements this.
type Resolver interface {
	Resolve(ctx context.Context, tag string, policy cache.Policy, req *dns.Msg) (*dns.Msg, error)
}

// QueryContext carries the per-query metadata exposed to route() as ctx,
// per §4.7 ("ctx provides client address and protocol").
type QueryContext struct {
	RemoteAddr net.Addr
	Proto      string
}

// Host owns the compiled script program and the registry it calls into.
// A fresh *goja.Runtime is created per query (§5: "pure computation...
// never suspends" but each query is an independent task; isolating the
// JS heap per query keeps concurrent route() invocations free of shared
// mutable VM state), while the init table — built once — is shared
// immutably across every runtime, per §4.7/§9 ("treat it as a value
// passed by reference into every route invocation rather than ambient
// state").
type Host struct {
	program  *goja.Program
	resolver Resolver
	initTable goja.Value
}

// New compiles source and runs its init() entry point once. A failing
// init() aborts startup, wrapped in *InitError.
func New(source string, resolver Resolver) (*Host, error) {
	program, err := goja.Compile("route.js", source, false)
	if err != nil {
		return nil, &InitError{Err: err}
	}

	h := &Host{program: program, resolver: resolver}

	vm := goja.New()
	h.bindGlobals(vm, nil)

	if _, err := vm.RunProgram(program); err != nil {
		return nil, &InitError{Err: err}
	}

	initFn, ok := goja.AssertFunction(vm.Get("init"))
	if !ok {
		return nil, &InitError{Err: fmt.Errorf("script does not define init()")}
	}

	initTable, err := initFn(goja.Undefined())
	if err != nil {
		return nil, &InitError{Err: err}
	}

	h.initTable = initTable
	return h, nil
}

// Route invokes the script's route() entry point for one query. A
// failure — thrown exception or malformed return value — is wrapped in
// *RuntimeError; the Router turns that into a ServFail reply.
func (h *Host) Route(ctx context.Context, qctx QueryContext, req *dnsmsg.Message) (*dnsmsg.Message, error) {
	vm := goja.New()
	h.bindGlobals(vm, &ctx)

	if _, err := vm.RunProgram(h.program); err != nil {
		return nil, &RuntimeError{Err: err}
	}

	routeFn, ok := goja.AssertFunction(vm.Get("route"))
	if !ok {
		return nil, &RuntimeError{Err: fmt.Errorf("script does not define route()")}
	}

	upstreams := h.bindUpstreams(vm, ctx)
	jsQuery := wrapMessage(vm, req)
	jsCtx := vm.NewObject()
	if qctx.RemoteAddr != nil {
		_ = jsCtx.Set("remoteAddr", qctx.RemoteAddr.String())
	}
	_ = jsCtx.Set("proto", qctx.Proto)

	result, err := routeFn(goja.Undefined(), upstreams, h.initTable, jsCtx, jsQuery)
	if err != nil {
		return nil, &RuntimeError{Err: err}
	}

	resp, err := unwrapMessage(result)
	if err != nil {
		return nil, &RuntimeError{Err: err}
	}

	return resp, nil
}

// bindGlobals installs the always-present constructors (Domain, IpCidr,
// GeoIp, blackhole) that init() and route() both need. The upstreams
// object, which needs a per-call context for cancellation, is bound
// separately by bindUpstreams.
func (h *Host) bindGlobals(vm *goja.Runtime, _ *context.Context) {
	_ = vm.Set("Domain", newDomainConstructor(vm))
	_ = vm.Set("IpCidr", newCidrConstructor(vm))
	_ = vm.Set("GeoIp", newGeoIPConstructor(vm))
	_ = vm.Set("blackhole", func(call goja.FunctionCall) goja.Value {
		req, err := unwrapMessage(call.Argument(0))
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return wrapMessage(vm, dnsmsg.Blackhole(req))
	})
}

// bindUpstreams implements `upstreams.send`/`send_default`. Per §4.7
// these are documented as async-suspending; since every query already
// runs on its own goroutine (§5), the binding simply blocks that
// goroutine on the registry call and returns synchronously — observably
// identical to cooperative suspension from the script's point of view,
// and the idiomatic Go rendition of the spec's suspension-point model.
func (h *Host) bindUpstreams(vm *goja.Runtime, ctx context.Context) goja.Value {
	obj := vm.NewObject()

	_ = obj.Set("send", func(call goja.FunctionCall) goja.Value {
		tag := call.Argument(0).String()
		policy := policyFromJS(call.Argument(1))
		req, err := unwrapMessage(call.Argument(2))
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}

		resp, err := h.resolver.Resolve(ctx, tag, policy, req.Raw())
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return wrapMessage(vm, dnsmsg.Wrap(resp))
	})

	_ = obj.Set("send_default", func(call goja.FunctionCall) goja.Value {
		tag := call.Argument(0).String()
		req, err := unwrapMessage(call.Argument(1))
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}

		resp, err := h.resolver.Resolve(ctx, tag, cache.Standard, req.Raw())
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return wrapMessage(vm, dnsmsg.Wrap(resp))
	})

	return obj
}

func policyFromJS(v goja.Value) cache.Policy {
	switch v.String() {
	case "Disabled":
		return cache.Disabled
	case "Persistent":
		return cache.Persistent
	default:
		return cache.Standard
	}
}

func newDomainConstructor(vm *goja.Runtime) func(goja.ConstructorCall) *goja.Object {
	return func(call goja.ConstructorCall) *goja.Object {
		set := domain.New()

		obj := call.This
		_ = obj.Set("add_file", func(call goja.FunctionCall) goja.Value {
			if err := set.AddFile(call.Argument(0).String()); err != nil {
				panic(vm.ToValue(err.Error()))
			}
			return goja.Undefined()
		})
		_ = obj.Set("add_qname", func(call goja.FunctionCall) goja.Value {
			set.AddQname(call.Argument(0).String())
			return goja.Undefined()
		})
		_ = obj.Set("seal", func(call goja.FunctionCall) goja.Value {
			set.Seal()
			handle := vm.NewObject()
			_ = handle.Set("contains", func(call goja.FunctionCall) goja.Value {
				return vm.ToValue(set.Contains(call.Argument(0).String()))
			})
			return handle
		})
		return obj
	}
}

func newCidrConstructor(vm *goja.Runtime) func(goja.ConstructorCall) *goja.Object {
	return func(call goja.ConstructorCall) *goja.Object {
		set := cidr.New()

		obj := call.This
		_ = obj.Set("add_file", func(call goja.FunctionCall) goja.Value {
			if err := set.AddFile(call.Argument(0).String()); err != nil {
				panic(vm.ToValue(err.Error()))
			}
			return goja.Undefined()
		})
		_ = obj.Set("seal", func(call goja.FunctionCall) goja.Value {
			set.Seal()
			handle := vm.NewObject()
			_ = handle.Set("contains", func(call goja.FunctionCall) goja.Value {
				ip := net.ParseIP(call.Argument(0).String())
				return vm.ToValue(set.Contains(ip))
			})
			return handle
		})
		return obj
	}
}

func newGeoIPConstructor(vm *goja.Runtime) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("from_path", func(call goja.FunctionCall) goja.Value {
		g, err := geoip.FromPath(call.Argument(0).String())
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return wrapGeoIP(vm, g)
	})
	_ = obj.Set("create_default", func(call goja.FunctionCall) goja.Value {
		g, err := geoip.FromDefault()
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return wrapGeoIP(vm, g)
	})
	return obj
}

func wrapGeoIP(vm *goja.Runtime, g *geoip.GeoIp) goja.Value {
	handle := vm.NewObject()
	_ = handle.Set("contains", func(call goja.FunctionCall) goja.Value {
		ip := net.ParseIP(call.Argument(0).String())
		cc := call.Argument(1).String()
		return vm.ToValue(g.Contains(ip, cc))
	})
	return handle
}
