//go:build windows

package osutils

import (
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/windows"
)

// IsAdmin checks if the current process has administrative privileges
func IsAdmin() bool {
	var token windows.Token
	h, _ := windows.GetCurrentProcess()
	err := windows.OpenProcessToken(h, windows.TOKEN_QUERY, &token)
	if err != nil {
		return false
	}
	defer token.Close()

	var sid *windows.SID
	err = windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := token.IsMember(sid)
	if err != nil {
		return false
	}

	return member
}

// portList renders ports the way netsh and New-NetFirewallRule print them
func portList(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

// EnsureFirewallRule makes sure an inbound TCP rule allows the given ports,
// creating or replacing it through an elevated PowerShell when needed.
func EnsureFirewallRule(ports ...int) error {
	if len(ports) == 0 {
		return nil
	}
	list := portList(ports)
	log.Printf("Firewall: Checking rule '%s' for ports %s", FirewallRuleName, list)

	output, err := exec.Command("netsh", "advfirewall", "firewall", "show", "rule", "name="+FirewallRuleName).CombinedOutput()
	if err == nil && strings.Contains(string(output), FirewallRuleName) {
		if strings.Contains(string(output), list) && strings.Contains(string(output), "Allow") {
			log.Printf("Firewall: Rule '%s' already allows %s", FirewallRuleName, list)
			return nil
		}
		log.Printf("Firewall: Rule '%s' does not match ports %s. Updating...", FirewallRuleName, list)
	} else {
		log.Printf("Firewall: Rule '%s' not found. Creating...", FirewallRuleName)
	}

	psCommand := fmt.Sprintf(
		"Remove-NetFirewallRule -DisplayName '%s' -ErrorAction SilentlyContinue; New-NetFirewallRule -DisplayName '%s' -Direction Inbound -LocalPort %s -Protocol TCP -Action Allow -Profile Any",
		FirewallRuleName, FirewallRuleName, list,
	)

	if IsAdmin() {
		cmd := exec.Command("powershell", "-NoProfile", "-Command", psCommand)
		if output, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to create firewall rule: %w (Output: %s)", err, string(output))
		}
		log.Printf("Firewall: Rule '%s' applied for ports %s", FirewallRuleName, list)
		return nil
	}

	log.Println("Firewall: Not elevated, requesting UAC elevation via ShellExecute")
	verbPtr, _ := windows.UTF16PtrFromString("runas")
	exePtr, _ := windows.UTF16PtrFromString("powershell.exe")
	argPtr, _ := windows.UTF16PtrFromString(fmt.Sprintf("-NoProfile -WindowStyle Hidden -Command \"%s\"", psCommand))
	if err := windows.ShellExecute(0, verbPtr, exePtr, argPtr, nil, windows.SW_HIDE); err != nil {
		return fmt.Errorf("failed to launch elevated powershell: %w", err)
	}
	return nil
}
