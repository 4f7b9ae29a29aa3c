// Package audio plays notification sounds. Sounds are configured per
// notification kind and decoded with beep (WAV, OGG and MP3).
package audio
