package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/sserelay/cmd/sserelay/config"
	"github.com/papercomputeco/sserelay/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "sserelay-config-test-*")
		Expect(err).NotTo(HaveOccurred())
		tmpDir, err = filepath.EvalSymlinks(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// Create a local .sserelay dir so the manager picks it up
		err = os.MkdirAll(filepath.Join(tmpDir, ".sserelay"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	execute := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	loadConfig := func() *config.Config {
		cfger, err := config.NewConfiger("")
		Expect(err).NotTo(HaveOccurred())
		cfg, err := cfger.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		return cfg
	}

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			_, err := execute("set", "relay.upstream", "https://api.anthropic.com")
			Expect(err).NotTo(HaveOccurred())

			// Verify the config file was created
			_, err = os.Stat(filepath.Join(tmpDir, ".sserelay", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(loadConfig().Relay.Upstream).To(Equal("https://api.anthropic.com"))
		})

		It("creates ~/.sserelay when no directory exists", func() {
			Expect(os.RemoveAll(filepath.Join(tmpDir, ".sserelay"))).To(Succeed())
			home := filepath.Join(tmpDir, "home")
			Expect(os.Mkdir(home, 0o755)).To(Succeed())
			GinkgoT().Setenv("HOME", home)

			_, err := execute("set", "relay.timeout", "90s")
			Expect(err).NotTo(HaveOccurred())

			_, err = os.Stat(filepath.Join(home, ".sserelay", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("masks the API key in its output", func() {
			out, err := execute("set", "relay.api_key", "sk-live-abcdef123456")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("sk-l****"))
			Expect(out).NotTo(ContainSubstring("abcdef123456"))
			Expect(loadConfig().Relay.APIKey).To(Equal("sk-live-abcdef123456"))
		})

		It("rejects unknown keys", func() {
			_, err := execute("set", "invalid_key", "value")
			Expect(err).To(HaveOccurred())
		})

		It("requires exactly two arguments", func() {
			_, err := execute("set", "relay.upstream")
			Expect(err).To(HaveOccurred())
		})

		It("rejects zero arguments", func() {
			_, err := execute("set")
			Expect(err).To(HaveOccurred())
		})

		It("rejects invalid durations", func() {
			_, err := execute("set", "relay.timeout", "not-a-duration")
			Expect(err).To(HaveOccurred())
		})

		It("rejects unknown eventstream providers", func() {
			_, err := execute("set", "eventstream.provider", "pigeon")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			_, err := execute("set", "relay.path", "/v1/messages")
			Expect(err).NotTo(HaveOccurred())

			out, err := execute("get", "relay.path")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("/v1/messages"))
		})

		It("shows <not set> for an empty key", func() {
			out, err := execute("get", "relay.api_key")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("<not set>"))
		})

		It("rejects unknown keys", func() {
			_, err := execute("get", "invalid_key")
			Expect(err).To(HaveOccurred())
		})

		It("requires exactly one argument", func() {
			_, err := execute("get")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists defaults when no config exists", func() {
			out, err := execute("list")
			Expect(err).NotTo(HaveOccurred())
			for _, key := range config.ValidConfigKeys() {
				Expect(out).To(ContainSubstring(key))
			}
			Expect(out).To(ContainSubstring(config.NewDefaultConfig().Relay.Upstream))
		})

		It("lists set values with the API key masked", func() {
			_, err := execute("set", "relay.api_key", "sk-live-abcdef123456")
			Expect(err).NotTo(HaveOccurred())

			out, err := execute("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring(`"sk-l****"`))
		})

		It("rejects any arguments", func() {
			_, err := execute("list", "extra")
			Expect(err).To(HaveOccurred())
		})
	})
})
