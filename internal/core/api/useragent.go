package api

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// DefaultUserAgent is the fallback used when no agent was generated for
// the session.
const DefaultUserAgent = "okhttp/5.0.0-alpha.14"

var uaDevices = []string{
	"sdk_gphone64_x86_64",
	"sdk_gphone_x86",
	"Pixel_6_Pro",
	"Pixel_7",
	"Pixel_3a",
	"Nexus_6P",
}

// RandomUserAgent produces a plausible Android/OkHttp mobile client
// User-Agent. The vendor API rejects obviously synthetic clients, so a
// fresh value is generated once per login session and reused for every
// call in that session. The value is cosmetic, not cryptographic.
func RandomUserAgent() string {
	android := fmt.Sprintf("%d.%d", 8+rand.IntN(7), rand.IntN(4))
	device := uaDevices[rand.IntN(len(uaDevices))]
	okhttp := fmt.Sprintf("%d.%d.0-alpha.%d", 4+rand.IntN(2), rand.IntN(3), 1+rand.IntN(19))
	build := fmt.Sprintf("%d-android%s-9-00043-g383607d234da-ab10550364",
		100000+rand.IntN(900000), strings.ReplaceAll(android, ".", ""))

	options := []string{
		fmt.Sprintf("aws-sdk-android/2.22.6 Linux/5.10.%d-%s Dalvik/2.1.0/0 en_US DevcuboClient", 120+rand.IntN(80), build),
		fmt.Sprintf("okhttp/%s (Linux; Android %s; %s)", okhttp, android, device),
		fmt.Sprintf("Dalvik/2.1.0 (Linux; U; Android %s; %s)", android, device),
		fmt.Sprintf("aws-sdk-android/2.22.6 (Linux; Android %s; %s)", android, device),
	}
	return options[rand.IntN(len(options))]
}
