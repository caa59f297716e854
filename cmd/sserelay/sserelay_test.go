package sserelaycmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	sserelaycmder "github.com/papercomputeco/sserelay/cmd/sserelay"
)

var _ = Describe("NewSSERelayCmd", func() {
	It("wires every subcommand", func() {
		cmd := sserelaycmder.NewSSERelayCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("serve", "stream", "collect", "config", "auth", "init", "version"))
	})

	It("has persistent debug and config-dir flags", func() {
		cmd := sserelaycmder.NewSSERelayCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().ShorthandLookup("d")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	It("prints the version", func() {
		var out bytes.Buffer
		cmd := sserelaycmder.NewSSERelayCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"version"})
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Version: dev"))
	})

	It("passes the config dir to config subcommands", func() {
		dir := GinkgoT().TempDir()

		var out bytes.Buffer
		cmd := sserelaycmder.NewSSERelayCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--config-dir", dir, "config", "set", "relay.timeout", "30s"})
		Expect(cmd.Execute()).To(Succeed())

		out.Reset()
		cmd = sserelaycmder.NewSSERelayCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--config-dir", dir, "config", "get", "relay.timeout"})
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("30s"))
	})
})
