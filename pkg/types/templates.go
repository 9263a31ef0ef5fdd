package types

var templates = map[Language]string{
	LanguagePython: `# Write your code here
# Read the input with input()
# and print the result with print()

def main():
    # Read input data
    data = input().strip()
    # Your solution here
    print(data)

if __name__ == "__main__":
    main()`,
	LanguageJavaScript: `// Write your code here
// Read the input from process.stdin
// and print the result with console.log

const readline = require("readline");

const rl = readline.createInterface({
  input: process.stdin,
  output: process.stdout
});

rl.on("line", (input) => {
  // Your solution here
  console.log(input);
  rl.close();
});`,
	LanguageCPP: `// Write your code here
#include <iostream>
using namespace std;

int main() {
    // Read input data
    string input;
    getline(cin, input);
    // Your solution here
    cout << input << endl;
    return 0;
}`,
}

// Template returns the starter code for a language, falling back to Python.
func Template(lang Language) string {
	if t, ok := templates[lang]; ok {
		return t
	}
	return templates[LanguagePython]
}
