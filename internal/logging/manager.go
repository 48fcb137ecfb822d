package logging

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Компоненты сервера; у каждого свой файл logs/<component>_<timestamp>.log
const (
	ComponentApp     = "app"
	ComponentSession = "session"
	ComponentStorage = "storage"
	ComponentAPI     = "api"
	ComponentHealth  = "health"
	ComponentBot     = "bot"
)

// ComponentLoggers выдаёт по одному логгеру на компонент и хранит
// консольные уровни из секции log_levels конфигурации.
type ComponentLoggers struct {
	mu      sync.Mutex
	loggers map[string]*Logger
	levels  map[string]LogLevel
}

var (
	components     *ComponentLoggers
	componentsOnce sync.Once
)

// Components возвращает общий для процесса набор логгеров.
func Components() *ComponentLoggers {
	componentsOnce.Do(func() {
		components = NewComponentLoggers()
	})
	return components
}

func NewComponentLoggers() *ComponentLoggers {
	return &ComponentLoggers{
		loggers: make(map[string]*Logger),
		levels:  make(map[string]LogLevel),
	}
}

// Get возвращает логгер компонента. Если файл создать нельзя,
// компонент пишет только в stderr.
func (c *ComponentLoggers) Get(component string) *Logger {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.loggers[component]; ok {
		return l
	}

	l, err := NewLogger(component)
	if err != nil {
		l = NewWriterLogger(component, os.Stderr, INFO)
		l.Warn("⚠️ Файл логов недоступен, пишу только в консоль: %v", err)
	}
	if level, ok := c.levels[component]; ok {
		l.minConsoleLevel = level
	}
	c.loggers[component] = l
	return l
}

// SetLevel задаёт консольный уровень компонента, в том числе для
// логгеров, которые ещё не созданы. Вызывается до запуска горутин.
func (c *ComponentLoggers) SetLevel(component string, level LogLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.levels[component] = level
	if l, ok := c.loggers[component]; ok {
		l.minConsoleLevel = level
	}
}

// ApplyLevels применяет секцию log_levels ("session": "debug", ...).
// Некорректные уровни пропускаются и возвращаются одной ошибкой.
func (c *ComponentLoggers) ApplyLevels(levels map[string]string) error {
	var errs []error
	for component, raw := range levels {
		level, err := ParseLevel(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", component, err))
			continue
		}
		c.SetLevel(component, level)
	}
	return errors.Join(errs...)
}

// Names возвращает отсортированные имена созданных логгеров.
func (c *ComponentLoggers) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.loggers))
	for name := range c.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close закрывает файлы всех компонентов. Уровни сохраняются.
func (c *ComponentLoggers) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for name, l := range c.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s log: %w", name, err))
		}
	}
	c.loggers = make(map[string]*Logger)
	return errors.Join(errs...)
}

// For — логгер компонента из общего набора.
func For(component string) *Logger {
	return Components().Get(component)
}

// CloseComponents закрывает файлы логов всех компонентов процесса.
func CloseComponents() error {
	return Components().Close()
}
