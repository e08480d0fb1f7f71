package kubit

import (
	"context"
	"reflect"
	"sync"

	"github.com/spf13/viper"
)

type Event struct {
	Name string
	Data any
}

const AllEvents = "*"

type EventFunc func(context.Context, *Event)

// EventManager is the application emitter. Typed events are dispatched under
// their type name (IE: kubit.ApplicationStateChanged), named events such as
// db:query go through Emit.
type EventManager struct {
	events map[string][]EventFunc
	mu     sync.RWMutex
}

func NewEventManager() *EventManager {
	return &EventManager{
		events: make(map[string][]EventFunc),
	}
}

func (em *EventManager) Register(name string, fnc EventFunc) *EventManager {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.events == nil {
		em.events = make(map[string][]EventFunc)
	}

	em.events[name] = append(em.events[name], fnc)
	return em
}

func (em *EventManager) Unregister(name string, fnc EventFunc) *EventManager {
	em.mu.Lock()
	defer em.mu.Unlock()

	handlers, ok := em.events[name]
	if !ok {
		return em
	}

	targetPtr := reflect.ValueOf(fnc).Pointer()
	newHandlers := make([]EventFunc, 0, len(handlers))

	for pos := range handlers {
		if reflect.ValueOf(handlers[pos]).Pointer() != targetPtr {
			newHandlers = append(newHandlers, handlers[pos])
		}
	}

	em.events[name] = newHandlers
	return em
}

// HasListeners reports if anything listens to name, emitters use it to
// skip building expensive payloads
func (em *EventManager) HasListeners(name string) bool {
	em.mu.RLock()
	defer em.mu.RUnlock()

	return len(em.events[name]) > 0 || len(em.events[AllEvents]) > 0
}

// Dispatch triggers all handlers for the given event data, the event
// name is the type name of data
func (em *EventManager) Dispatch(ctx context.Context, data any) {
	em.Emit(ctx, eventName(data), data)
}

// Emit triggers all handlers registered under name and the catch all ones
func (em *EventManager) Emit(ctx context.Context, name string, data any) {
	em.mu.RLock()
	handlers := make([]EventFunc, 0, len(em.events[name])+len(em.events[AllEvents]))
	handlers = append(handlers, em.events[name]...)
	handlers = append(handlers, em.events[AllEvents]...)
	em.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{Name: name, Data: data}
	for _, handler := range handlers {
		handler(ctx, &event)
	}
}

func eventName(data any) string {
	t := reflect.TypeOf(data)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}

// ***************************************************************************
// *  Events
// ***************************************************************************

const (
	EventShutdown      = "kubit.ApplicationShutdown"
	EventStateChanged  = "kubit.ApplicationStateChanged"
	EventConfigChanged = "kubit.ConfigChanged"
)

type ApplicationShutdown struct{}

type ApplicationStateChanged struct {
	State ApplicationState
}

type ConfigChanged struct {
	Config *viper.Viper
}
