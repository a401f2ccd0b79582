// Package icmp provides the raw ICMP echo transport used by pingdrop.
//
// Frames travel in the data section of ICMP echo packets. Requests from the
// sender use echo request (type 8); acknowledgments from the receiver use echo
// reply (type 0). Both carry the fixed identifier EchoID so the tool can pick
// its own packets out of unrelated ping traffic on the same host.
//
// # Raw Sockets
//
// The transport opens a raw "ip4:icmp" socket. Unprivileged "udp4" ICMP
// sockets are not usable here: the kernel rewrites the echo identifier and
// never delivers inbound echo requests to them. Raw sockets need root or
// CAP_NET_RAW:
//
//	sudo setcap cap_net_raw+ep ./pingdrop
//
// # Kernel Echo Replies
//
// A host receiving echo requests normally answers them itself. Those replies
// carry the same identifier and payload as the request, so the receiver
// disables them for the duration of a transfer (see package echoguard).
package icmp
