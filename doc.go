/*
Package ddns keeps a Cloudflare DNS "A" record pointed at the public IPv4 address of the machine running it.

Usage will always start with [ddns.New],
which takes the record name, the zone id, and a [RecordStore] such as the one registered by [UsingCloudflare].
Each call to [Client.Reconcile] is one pass:
the record is read, the public address is resolved, and the record is written only when the two differ.
The pass reports an [Outcome]; no state is kept between passes.

[RunDaemon] repeats passes on an interval for hosts without an external scheduler.
*/
package ddns
