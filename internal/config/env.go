package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const envPrefix = "FLATWATCH_"

// LookupEnv читает переменную окружения; если её нет, пробует NAME_FILE
// и читает значение из файла (docker secrets).
func LookupEnv(name string) (string, bool, error) {
	if v, ok := os.LookupEnv(name); ok {
		return v, true, nil
	}
	path, ok := os.LookupEnv(name + "_FILE")
	if !ok || path == "" {
		return "", false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("read %s_FILE: %w", name, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// ApplyEnv переопределяет секреты и адреса значениями из окружения.
func (c *Config) ApplyEnv() error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"SOURCE_URL", &c.Source.URL},
		{"STORAGE_DSN", &c.Storage.DSN},
		{"STORAGE_PATH", &c.Storage.Path},
		{"SMTP_HOST", &c.Notify.SMTP.Host},
		{"SMTP_USER", &c.Notify.SMTP.User},
		{"SMTP_PASSWORD", &c.Notify.SMTP.Password},
		{"SMTP_FROM", &c.Notify.SMTP.From},
		{"TELEGRAM_TOKEN", &c.Notify.Telegram.Token},
		{"STATUS_ADDR", &c.Status.Addr},
		{"LOG_LEVEL", &c.Observability.LogLevel},
	}
	for _, s := range strs {
		v, ok, err := LookupEnv(envPrefix + s.name)
		if err != nil {
			return err
		}
		if ok {
			*s.dst = v
		}
	}

	lists := []struct {
		name string
		dst  *[]string
	}{
		{"SMTP_TO", &c.Notify.SMTP.To},
		{"TELEGRAM_CHATS", &c.Notify.Telegram.Chats},
	}
	for _, l := range lists {
		v, ok, err := LookupEnv(envPrefix + l.name)
		if err != nil {
			return err
		}
		if ok {
			*l.dst = splitList(v)
		}
	}

	if v, ok, err := LookupEnv(envPrefix + "SMTP_PORT"); err != nil {
		return err
	} else if ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sSMTP_PORT: %w", envPrefix, err)
		}
		c.Notify.SMTP.Port = port
	}

	if v, ok, err := LookupEnv(envPrefix + "DRY_RUN"); err != nil {
		return err
	} else if ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sDRY_RUN: %w", envPrefix, err)
		}
		c.Notify.DryRun = b
	}

	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
