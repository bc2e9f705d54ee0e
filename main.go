package main

func main() {
	defer func() {
		if recognizer != nil {
			recognizer.Stop()
		}
		if orator != nil {
			orator.Cancel()
		}
		ctl.Shutdown()
		saver.Flush()
		if err := provider.Close(); err != nil {
			logger.Error("failed to close db", "error", err)
		}
	}()
	pages.AddPage("main", flex, true, true)
	if err := app.SetRoot(pages,
		true).EnableMouse(true).EnablePaste(true).Run(); err != nil {
		logger.Error("failed to start tview app", "error", err)
	}
}
