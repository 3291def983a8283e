// Package credstore persists the current session record under one fixed key.
//
// Store implements the load/save/clear policy and delegates raw bytes to a Slot.
// Four slot backends are provided with different durability tradeoffs:
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Redis: Shared key-value storage, the key expires together with the refresh token
//   - Memory: Process-local storage, lost on exit
//
// Load never fails: a missing, unreadable, corrupted or expired entry reads as
// "logged out", and anything that cannot be used is removed from the slot.
package credstore
