package banner

import "fmt"

const banner = `
███╗   ███╗███████╗ ██████╗ ██╗     ███████╗██████╗  ██████╗ ███████╗██████╗
████╗ ████║██╔════╝██╔════╝ ██║     ██╔════╝██╔══██╗██╔════╝ ██╔════╝██╔══██╗
██╔████╔██║███████╗██║  ███╗██║     █████╗  ██║  ██║██║  ███╗█████╗  ██████╔╝
██║╚██╔╝██║╚════██║██║   ██║██║     ██╔══╝  ██║  ██║██║   ██║██╔══╝  ██╔══██╗
██║ ╚═╝ ██║███████║╚██████╔╝███████╗███████╗██████╔╝╚██████╔╝███████╗██║  ██║
╚═╝     ╚═╝╚══════╝ ╚═════╝ ╚══════╝╚══════╝╚═════╝  ╚═════╝ ╚══════╝╚═╝  ╚═╝
`

// Print writes the startup banner with the effective runtime settings.
func Print(apiAddr, intakeAddr, dbPath, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("API:      %s\n", apiAddr)
	fmt.Printf("Intake:   %s\n", intakeAddr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST   intake /v1/frames    - one raw transport frame per body")
	fmt.Println("POST   intake /v1/snapshot  - one raw directory snapshot per body")
	fmt.Println("GET    api    /v1/messages  - active message cache")
	fmt.Println("GET    api    /v1/ledger    - deletion ledger, newest first")
	fmt.Println("DELETE api    /v1/ledger/{id} - remove a ledger entry")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://localhost%s/v1/frames' --data-binary @frame.bin\n", intakeAddr)
	fmt.Printf("curl 'http://localhost%s/v1/ledger'\n", apiAddr)
	fmt.Println()
}
